package domain_test

import (
	"testing"
	"time"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

func TestNamespaceFor(t *testing.T) {
	cases := []struct {
		instanceID string
		want       string
	}{
		{"abc123", "paas-abc123-caas"},
		{"ABC123", "paas-abc123-caas"},
		{"9D8E7F", "paas-9d8e7f-caas"},
	}

	for _, tc := range cases {
		if got := domain.NamespaceFor(tc.instanceID); got != tc.want {
			t.Errorf("NamespaceFor(%q) = %q, want %q", tc.instanceID, got, tc.want)
		}
	}
}

func TestNewUserInstance(t *testing.T) {
	before := time.Now().UTC()
	inst := domain.NewUserInstance("abc123", "org-1", "space-1", "small", "owner@acme.io")
	after := time.Now().UTC()

	if inst.InstanceID != "abc123" {
		t.Errorf("InstanceID = %q, want %q", inst.InstanceID, "abc123")
	}
	if inst.DashboardType != domain.DashboardUser {
		t.Errorf("DashboardType = %q, want %q", inst.DashboardType, domain.DashboardUser)
	}
	if inst.Status != domain.StatusProvisioning {
		t.Errorf("Status = %q, want %q", inst.Status, domain.StatusProvisioning)
	}
	if inst.Namespace != "paas-abc123-caas" {
		t.Errorf("Namespace = %q, want %q", inst.Namespace, "paas-abc123-caas")
	}
	if inst.AccountName != domain.Placeholder || inst.AccountToken != domain.Placeholder {
		t.Errorf("account fields should be placeholders until platform resources exist")
	}
	if inst.CreatedAt.Before(before) || inst.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want between %v and %v", inst.CreatedAt, before, after)
	}
	if inst.UpdatedAt != inst.CreatedAt {
		t.Errorf("UpdatedAt should equal CreatedAt on new instance")
	}
}

func TestNewAdminInstance_NoNamespace(t *testing.T) {
	inst := domain.NewAdminInstance("admin-1", "org-admin", "space-1", "small", "root@acme.io")

	if inst.DashboardType != domain.DashboardAdmin {
		t.Errorf("DashboardType = %q, want %q", inst.DashboardType, domain.DashboardAdmin)
	}
	if inst.Namespace != domain.Placeholder {
		t.Errorf("Namespace = %q, want placeholder: admin instances own no namespace", inst.Namespace)
	}
}

func TestNormalizeQuantity(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"512MB", "512Mi"},
		{"1GB", "1Gi"},
		{"2TB", "2Ti"},
		{"512Mi", "512Mi"},
		{"500m", "500m"},
	}

	for _, tc := range cases {
		if got := domain.NormalizeQuantity(tc.in); got != tc.want {
			t.Errorf("NormalizeQuantity(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTransitions_ValidPaths(t *testing.T) {
	cases := []struct {
		event domain.Event
		src   domain.Status
		dst   domain.Status
	}{
		{domain.EventProvisionComplete, domain.StatusProvisioning, domain.StatusActive},
		{domain.EventPlanChange, domain.StatusActive, domain.StatusUpdating},
		{domain.EventPlanChangeComplete, domain.StatusUpdating, domain.StatusActive},
		{domain.EventDelete, domain.StatusActive, domain.StatusDeleting},
		// Also: delete of a half-provisioned instance
		{domain.EventDelete, domain.StatusProvisioning, domain.StatusDeleting},
	}

	for _, tc := range cases {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src && tr.Dst == tc.dst {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing transition: %q from %q → %q", tc.event, tc.src, tc.dst)
		}
	}
}

func TestTransitions_InvalidPaths(t *testing.T) {
	// These transitions must NOT exist.
	invalid := []struct {
		event domain.Event
		src   domain.Status
	}{
		{domain.EventPlanChange, domain.StatusProvisioning},
		{domain.EventPlanChange, domain.StatusDeleting},
		{domain.EventProvisionComplete, domain.StatusActive},
		{domain.EventDelete, domain.StatusDeleting},
	}

	for _, tc := range invalid {
		for _, tr := range domain.Transitions {
			if tr.Event == tc.event && tr.Src == tc.src {
				t.Errorf("unexpected transition: %q from %q should not exist", tc.event, tc.src)
			}
		}
	}
}
