package fsm_test

import (
	"context"
	"errors"
	"testing"

	adapter "github.com/K-PaaS/cp-portal-service-broker/internal/adapter/fsm"
	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

func TestValidator_AllTransitions(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	for _, tr := range domain.Transitions {
		dst, err := v.Apply(ctx, tr.Src, tr.Event)
		if err != nil {
			t.Errorf("Apply(%q, %q) unexpected error: %v", tr.Src, tr.Event, err)
			continue
		}
		if dst != tr.Dst {
			t.Errorf("Apply(%q, %q) = %q, want %q", tr.Src, tr.Event, dst, tr.Dst)
		}
	}
}

func TestValidator_InvalidTransition(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Can't change plans before provisioning completes.
	_, err := v.Apply(ctx, domain.StatusProvisioning, domain.EventPlanChange)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Event != domain.EventPlanChange {
		t.Errorf("event = %q, want %q", trErr.Event, domain.EventPlanChange)
	}
	if trErr.Current != domain.StatusProvisioning {
		t.Errorf("current = %q, want %q", trErr.Current, domain.StatusProvisioning)
	}
}

func TestValidator_FullLifecycle(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	steps := []struct {
		from  domain.Status
		event domain.Event
		want  domain.Status
	}{
		{domain.StatusProvisioning, domain.EventProvisionComplete, domain.StatusActive},
		{domain.StatusActive, domain.EventPlanChange, domain.StatusUpdating},
		{domain.StatusUpdating, domain.EventPlanChangeComplete, domain.StatusActive},
		{domain.StatusActive, domain.EventDelete, domain.StatusDeleting},
	}

	for _, step := range steps {
		got, err := v.Apply(ctx, step.from, step.event)
		if err != nil {
			t.Fatalf("Apply(%q, %q) error: %v", step.from, step.event, err)
		}
		if got != step.want {
			t.Errorf("Apply(%q, %q) = %q, want %q", step.from, step.event, got, step.want)
		}
	}
}

func TestValidator_DeleteFromProvisioning(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	// Delete is valid from both "provisioning" and "active".
	got, err := v.Apply(ctx, domain.StatusProvisioning, domain.EventDelete)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != domain.StatusDeleting {
		t.Errorf("got %q, want %q", got, domain.StatusDeleting)
	}
}

func TestValidator_DeleteFromDeleting_Invalid(t *testing.T) {
	v := adapter.New()
	ctx := context.Background()

	_, err := v.Apply(ctx, domain.StatusDeleting, domain.EventDelete)
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}
