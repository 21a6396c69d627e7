package domain

import "context"

// InstanceRepository defines the persistence contract for instance records.
// Create must enforce the uniqueness constraints (instance id, one USER
// instance per organization, one ADMIN instance system-wide) and return
// a ConflictError when a concurrent saga violates them.
type InstanceRepository interface {
	Create(ctx context.Context, instance Instance) error
	GetByID(ctx context.Context, instanceID string) (Instance, error)
	List(ctx context.Context, filter ListFilter) ([]Instance, error)
	Update(ctx context.Context, instance Instance) error
	Delete(ctx context.Context, instanceID string) error
	ExistsByOrganization(ctx context.Context, organizationID string, t DashboardType) (bool, error)
	ExistsByType(ctx context.Context, t DashboardType) (bool, error)
}

// ListFilter holds optional criteria for listing instances.
type ListFilter struct {
	DashboardType *DashboardType
	Limit         int
	Offset        int
}

// PlatformClient issues resource operations against the compute cluster.
// Implementations are stateless facades; existence is reported as a
// boolean, never as a transport error.
type PlatformClient interface {
	NamespaceExists(ctx context.Context, name string) (bool, error)
	CreateNamespace(ctx context.Context, name string) error
	DeleteNamespace(ctx context.Context, name string) error
	CreateResourceQuota(ctx context.Context, namespace string, plan Plan) error
	ReplaceResourceQuota(ctx context.Context, namespace string, plan Plan) error
	CreateLimitRange(ctx context.Context, namespace string) error
	CreateRole(ctx context.Context, namespace, roleName string) error
	CreateRoleBinding(ctx context.Context, namespace, roleName, account string) error
	CreateServiceAccount(ctx context.Context, namespace, account string) error
	ServiceAccountToken(ctx context.Context, namespace, account string) (string, error)
	CreateRegistrySecret(ctx context.Context, namespace string) error
}

// AccountResult is the closed outcome set of an identity account
// creation call.
type AccountResult string

const (
	AccountCreated AccountResult = "created"
	AccountExists  AccountResult = "exists"
	AccountFailed  AccountResult = "failed"
)

// AccountStatus reports the outcome of an identity-provider create call.
// AccountID is only set for newly created accounts; compensation deletes
// an account only when this saga created it.
type AccountStatus struct {
	Result    AccountResult
	AccountID string
}

// IdentityClient manages federated identity accounts and group
// membership in the identity provider.
type IdentityClient interface {
	CreateAccount(ctx context.Context, username, role string) (AccountStatus, error)
	DeleteAccount(ctx context.Context, accountID string) error
	AccountID(ctx context.Context, username string) (string, error)
	JoinGroup(ctx context.Context, accountID, group string) error
	LeaveGroup(ctx context.Context, accountID, group string) error
}

// PortalClient talks to the internal user-management API.
type PortalClient interface {
	AdminExists(ctx context.Context) (bool, error)
	SignUpUser(ctx context.Context, account PortalAccount) error
	SignUpAdmin(ctx context.Context, account PortalAccount) error
	DeleteClusterAdmin(ctx context.Context) error
	DeleteNamespaceUsers(ctx context.Context, namespace string) error
}

// PortalAccount carries the identity fields the portal signup expects.
type PortalAccount struct {
	Username   string
	AccountID  string
	InstanceID string
}

// PlanCatalog resolves plan ids to sizing tiers.
type PlanCatalog interface {
	Plan(id string) (Plan, error)
}

// EventPublisher defines the contract for emitting provisioning events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, instance Instance) error
}

// TransitionValidator checks lifecycle transitions against Transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
