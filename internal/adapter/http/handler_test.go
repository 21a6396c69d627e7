package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/catalog"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/fsm"
	adapter "github.com/K-PaaS/cp-portal-service-broker/internal/adapter/http"
	"github.com/K-PaaS/cp-portal-service-broker/internal/adapter/sqlite"
	"github.com/K-PaaS/cp-portal-service-broker/internal/app"
	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

const testCatalog = `
plans:
  - id: small
    name: Small
    weight: 1
    memory: 512MB
    disk: 1GB
  - id: large
    name: Large
    weight: 3
    memory: 4GB
    disk: 20GB
`

// stubPlatform fulfills every platform call in memory.
type stubPlatform struct {
	namespaces map[string]bool
}

func (s *stubPlatform) NamespaceExists(_ context.Context, name string) (bool, error) {
	return s.namespaces[name], nil
}

func (s *stubPlatform) CreateNamespace(_ context.Context, name string) error {
	s.namespaces[name] = true
	return nil
}

func (s *stubPlatform) DeleteNamespace(_ context.Context, name string) error {
	delete(s.namespaces, name)
	return nil
}

func (s *stubPlatform) CreateResourceQuota(_ context.Context, _ string, _ domain.Plan) error {
	return nil
}

func (s *stubPlatform) ReplaceResourceQuota(_ context.Context, _ string, _ domain.Plan) error {
	return nil
}

func (s *stubPlatform) CreateLimitRange(_ context.Context, _ string) error      { return nil }
func (s *stubPlatform) CreateRole(_ context.Context, _, _ string) error         { return nil }
func (s *stubPlatform) CreateRoleBinding(_ context.Context, _, _, _ string) error { return nil }
func (s *stubPlatform) CreateServiceAccount(_ context.Context, _, _ string) error { return nil }
func (s *stubPlatform) CreateRegistrySecret(_ context.Context, _ string) error  { return nil }

func (s *stubPlatform) ServiceAccountToken(_ context.Context, _, _ string) (string, error) {
	return "sa-token", nil
}

type stubIdentity struct{}

func (s *stubIdentity) CreateAccount(_ context.Context, _, _ string) (domain.AccountStatus, error) {
	return domain.AccountStatus{Result: domain.AccountCreated, AccountID: "kc-1"}, nil
}

func (s *stubIdentity) DeleteAccount(_ context.Context, _ string) error     { return nil }
func (s *stubIdentity) AccountID(_ context.Context, _ string) (string, error) { return "kc-1", nil }
func (s *stubIdentity) JoinGroup(_ context.Context, _, _ string) error      { return nil }
func (s *stubIdentity) LeaveGroup(_ context.Context, _, _ string) error     { return nil }

type stubPortal struct{}

func (s *stubPortal) AdminExists(_ context.Context) (bool, error)                  { return false, nil }
func (s *stubPortal) SignUpUser(_ context.Context, _ domain.PortalAccount) error   { return nil }
func (s *stubPortal) SignUpAdmin(_ context.Context, _ domain.PortalAccount) error  { return nil }
func (s *stubPortal) DeleteClusterAdmin(_ context.Context) error                   { return nil }
func (s *stubPortal) DeleteNamespaceUsers(_ context.Context, _ string) error       { return nil }

// noopPublisher is a no-op EventPublisher for tests.
type noopPublisher struct{}

func (p *noopPublisher) Publish(_ context.Context, _ domain.Event, _ domain.Instance) error {
	return nil
}

// newTestServer creates a full-stack httptest.Server with SQLite in-memory.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	plans, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parsing test catalog: %v", err)
	}

	orch := app.NewOrchestrator(
		repo,
		&stubPlatform{namespaces: make(map[string]bool)},
		&stubIdentity{},
		&stubPortal{},
		plans,
		&noopPublisher{},
		fsm.New(),
		app.Config{
			AdminOrganization: "org-admin",
			ClusterAdminGroup: "cluster-admin-group",
			DashboardURL:      "https://portal.example.com",
			InitRole:          "cp-init-role",
			AdminRole:         "cp-admin-role",
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("cp-broker", "0.1.0"))
	adapter.Register(api, orch, plans)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

// doRequest performs an HTTP request with context (avoids noctx linter).
func doRequest(t *testing.T, method, url, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}

	return resp
}

func provisionBody(org, plan, owner string) string {
	return fmt.Sprintf(`{"organization_guid":%q,"space_guid":"space-1","plan_id":%q,"parameters":{"owner":%q}}`, org, plan, owner)
}

// mustProvision provisions a user instance via the API and returns its response.
func mustProvision(t *testing.T, srv *httptest.Server, instanceID, org, plan string) adapter.InstanceResponse {
	t.Helper()

	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/"+instanceID, provisionBody(org, plan, "jane@acme.io"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("provision: status = %d, want %d (%s)", resp.StatusCode, http.StatusOK, body)
	}

	var inst adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		t.Fatalf("decode instance: %v", err)
	}

	return inst
}

// --- Provision ---

func TestProvision(t *testing.T) {
	srv := newTestServer(t)
	inst := mustProvision(t, srv, "abc123", "org-1", "small")

	if inst.InstanceID != "abc123" {
		t.Errorf("InstanceID = %q, want %q", inst.InstanceID, "abc123")
	}
	if inst.DashboardType != "USER" {
		t.Errorf("DashboardType = %q, want %q", inst.DashboardType, "USER")
	}
	if inst.Status != "active" {
		t.Errorf("Status = %q, want %q", inst.Status, "active")
	}
	if inst.Namespace != "paas-abc123-caas" {
		t.Errorf("Namespace = %q, want %q", inst.Namespace, "paas-abc123-caas")
	}
	if inst.DashboardURL != "https://portal.example.com?sessionRefresh=true" {
		t.Errorf("DashboardURL = %q", inst.DashboardURL)
	}
}

func TestProvision_AdminVariant(t *testing.T) {
	srv := newTestServer(t)

	body := `{"organization_guid":"org-admin","space_guid":"space-1","plan_id":"small","parameters":{"owner":"root@acme.io","portal":"admin"}}`
	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/admin-1", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var inst adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.DashboardType != "ADMIN" {
		t.Errorf("DashboardType = %q, want %q", inst.DashboardType, "ADMIN")
	}
}

func TestProvision_AdminWrongOrganization(t *testing.T) {
	srv := newTestServer(t)

	body := `{"organization_guid":"org-1","space_guid":"space-1","plan_id":"small","parameters":{"owner":"root@acme.io","portal":"admin"}}`
	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/admin-1", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestProvision_DuplicateInstance(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/abc123", provisionBody("org-2", "small", "john@acme.io"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestProvision_OrganizationQuota(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/def456", provisionBody("org-1", "small", "john@acme.io"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestProvision_UnknownPlan(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/abc123", provisionBody("org-1", "enormous", "jane@acme.io"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestProvision_MissingOrganization(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/v2/service_instances/abc123", `{"space_guid":"space-1","plan_id":"small","parameters":{"owner":"jane@acme.io"}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

// --- Update ---

func TestUpdate(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodPatch, srv.URL+"/v2/service_instances/abc123", `{"plan_id":"large"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var inst adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.PlanID != "large" {
		t.Errorf("PlanID = %q, want %q", inst.PlanID, "large")
	}
}

func TestUpdate_Downgrade(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "large")

	resp := doRequest(t, http.MethodPatch, srv.URL+"/v2/service_instances/abc123", `{"plan_id":"small"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPatch, srv.URL+"/v2/service_instances/nonexistent", `{"plan_id":"large"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- Deprovision ---

func TestDeprovision(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v2/service_instances/abc123", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v2/service_instances/abc123", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDeprovision_AbsentIsSuccess(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v2/service_instances/ghost", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

// --- Get / List ---

func TestGet(t *testing.T) {
	srv := newTestServer(t)
	created := mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v2/service_instances/abc123", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var inst adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if inst.InstanceID != created.InstanceID {
		t.Errorf("InstanceID = %q, want %q", inst.InstanceID, created.InstanceID)
	}
}

func TestList(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")
	mustProvision(t, srv, "def456", "org-2", "large")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v2/service_instances", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var instances []adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(instances) != 2 {
		t.Errorf("got %d instances, want 2", len(instances))
	}
}

func TestList_FilterByDashboardType(t *testing.T) {
	srv := newTestServer(t)
	mustProvision(t, srv, "abc123", "org-1", "small")

	resp := doRequest(t, http.MethodGet, srv.URL+"/v2/service_instances?dashboard_type=ADMIN", "")
	defer resp.Body.Close()

	var instances []adapter.InstanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&instances); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(instances) != 0 {
		t.Errorf("got %d instances, want 0", len(instances))
	}
}

// --- Catalog ---

func TestCatalog(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/v2/catalog", "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Plans []adapter.PlanResponse `json:"plans"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(body.Plans))
	}
	if body.Plans[0].ID != "small" || body.Plans[1].ID != "large" {
		t.Errorf("plans = [%s %s], want [small large]", body.Plans[0].ID, body.Plans[1].ID)
	}
}
