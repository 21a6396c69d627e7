package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Config holds the orchestrator's fixed wiring: the single organization
// allowed to provision the admin portal, the identity-provider group for
// cluster admins, the portal base URL, and the role names created in
// every tenant namespace.
type Config struct {
	AdminOrganization string
	ClusterAdminGroup string
	DashboardURL      string
	InitRole          string
	AdminRole         string
}

// Orchestrator drives the provisioning sagas. Each saga is a fixed
// sequence of remote steps; a failure after any side-effecting step
// compensates exactly the steps already completed, in reverse order.
type Orchestrator struct {
	repo      domain.InstanceRepository
	platform  domain.PlatformClient
	identity  domain.IdentityClient
	portal    domain.PortalClient
	catalog   domain.PlanCatalog
	publisher domain.EventPublisher
	validator domain.TransitionValidator
	cfg       Config
	log       *slog.Logger
}

// NewOrchestrator creates an orchestrator with the given collaborators.
func NewOrchestrator(
	repo domain.InstanceRepository,
	platform domain.PlatformClient,
	identity domain.IdentityClient,
	portal domain.PortalClient,
	catalog domain.PlanCatalog,
	publisher domain.EventPublisher,
	validator domain.TransitionValidator,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		platform:  platform,
		identity:  identity,
		portal:    portal,
		catalog:   catalog,
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
		log:       log,
	}
}

// CreateRequest carries the provisioning parameters common to both
// saga variants.
type CreateRequest struct {
	InstanceID     string
	OrganizationID string
	SpaceID        string
	PlanID         string
	Owner          string
}

// CreateUserInstance provisions a user-portal workspace: identity
// account, cluster namespace with quota, limit range, roles and a
// dashboard service account, then the durable record and the portal
// registration.
func (o *Orchestrator) CreateUserInstance(ctx context.Context, req CreateRequest) (domain.Instance, error) {
	if _, err := o.repo.GetByID(ctx, req.InstanceID); err == nil {
		return domain.Instance{}, &domain.AlreadyExistsError{InstanceID: req.InstanceID}
	} else if !errors.Is(err, domain.ErrInstanceNotFound) {
		return domain.Instance{}, fmt.Errorf("checking instance id: %w", err)
	}

	taken, err := o.repo.ExistsByOrganization(ctx, req.OrganizationID, domain.DashboardUser)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("checking organization quota: %w", err)
	}
	if taken {
		return domain.Instance{}, &domain.OrgQuotaError{OrganizationID: req.OrganizationID}
	}

	plan, err := o.catalog.Plan(req.PlanID)
	if err != nil {
		return domain.Instance{}, err
	}

	// The store and the platform can diverge, so the namespace check goes
	// straight to the platform.
	ns := domain.NamespaceFor(req.InstanceID)
	exists, err := o.platform.NamespaceExists(ctx, ns)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("checking namespace %q: %w", ns, err)
	}
	if exists {
		return domain.Instance{}, &domain.NamespaceCollisionError{Namespace: ns}
	}

	rb := newRollback(o.log)

	status, err := o.identity.CreateAccount(ctx, req.Owner, domain.RoleNamespaceAdmin)
	if err != nil {
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}
	if status.Result == domain.AccountFailed {
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: errors.New("account creation failed")}
	}
	// Only accounts this saga created are deleted on rollback.
	if status.Result == domain.AccountCreated {
		accountID := status.AccountID
		rb.push("delete identity account", func(ctx context.Context) error {
			return o.identity.DeleteAccount(ctx, accountID)
		})
	}

	account := accountNameFor(req.OrganizationID, req.Owner)
	token, err := o.provisionNamespace(ctx, rb, ns, plan, account)
	if err != nil {
		rb.run(ctx)
		return domain.Instance{}, err
	}

	inst := domain.NewUserInstance(req.InstanceID, req.OrganizationID, req.SpaceID, req.PlanID, req.Owner)
	inst.AccountName = account
	inst.AccountToken = token
	inst.DashboardURL = o.dashboardURL()

	if err := o.repo.Create(ctx, inst); err != nil {
		rb.run(ctx)
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return domain.Instance{}, err
		}
		return domain.Instance{}, &domain.PersistenceError{Cause: err}
	}
	rb.push("delete instance record", func(ctx context.Context) error {
		return o.repo.Delete(ctx, inst.InstanceID)
	})

	accountID, err := o.resolveAccountID(ctx, status, req.Owner)
	if err != nil {
		rb.run(ctx)
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}
	if err := o.portal.SignUpUser(ctx, domain.PortalAccount{
		Username:   req.Owner,
		AccountID:  accountID,
		InstanceID: req.InstanceID,
	}); err != nil {
		rb.run(ctx)
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}

	return o.activate(ctx, rb, inst)
}

// CreateAdminInstance provisions the single admin-portal instance. The
// admin owns no namespace; the saga touches only the identity provider,
// the store and the portal.
func (o *Orchestrator) CreateAdminInstance(ctx context.Context, req CreateRequest) (domain.Instance, error) {
	if req.OrganizationID != o.cfg.AdminOrganization {
		return domain.Instance{}, &domain.InvalidOrganizationError{OrganizationID: req.OrganizationID}
	}

	if _, err := o.repo.GetByID(ctx, req.InstanceID); err == nil {
		return domain.Instance{}, &domain.AlreadyExistsError{InstanceID: req.InstanceID}
	} else if !errors.Is(err, domain.ErrInstanceNotFound) {
		return domain.Instance{}, fmt.Errorf("checking instance id: %w", err)
	}

	taken, err := o.repo.ExistsByType(ctx, domain.DashboardAdmin)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("checking admin instance: %w", err)
	}
	if taken {
		return domain.Instance{}, &domain.AlreadyExistsError{InstanceID: req.InstanceID}
	}

	// The portal's own admin record is checked too: store and portal can
	// diverge just like store and platform.
	portalAdmin, err := o.portal.AdminExists(ctx)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("checking portal admin: %w", err)
	}
	if portalAdmin {
		return domain.Instance{}, &domain.AlreadyExistsError{InstanceID: req.InstanceID}
	}

	if _, err := o.catalog.Plan(req.PlanID); err != nil {
		return domain.Instance{}, err
	}

	rb := newRollback(o.log)

	status, err := o.identity.CreateAccount(ctx, req.Owner, domain.RoleClusterAdmin)
	if err != nil {
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}
	switch status.Result {
	case domain.AccountCreated:
		accountID := status.AccountID
		rb.push("delete identity account", func(ctx context.Context) error {
			return o.identity.DeleteAccount(ctx, accountID)
		})
	case domain.AccountExists:
		// The account predates this saga: join it to the cluster-admin
		// group instead, and reverse by leaving the group. The account
		// itself is never deleted.
		accountID, err := o.identity.AccountID(ctx, req.Owner)
		if err != nil {
			return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
		}
		if err := o.identity.JoinGroup(ctx, accountID, o.cfg.ClusterAdminGroup); err != nil {
			return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
		}
		rb.push("leave cluster-admin group", func(ctx context.Context) error {
			return o.identity.LeaveGroup(ctx, accountID, o.cfg.ClusterAdminGroup)
		})
	default:
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: errors.New("account creation failed")}
	}

	inst := domain.NewAdminInstance(req.InstanceID, req.OrganizationID, req.SpaceID, req.PlanID, req.Owner)
	inst.DashboardURL = o.dashboardURL()

	if err := o.repo.Create(ctx, inst); err != nil {
		rb.run(ctx)
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			return domain.Instance{}, err
		}
		return domain.Instance{}, &domain.PersistenceError{Cause: err}
	}
	rb.push("delete instance record", func(ctx context.Context) error {
		return o.repo.Delete(ctx, inst.InstanceID)
	})

	accountID, err := o.resolveAccountID(ctx, status, req.Owner)
	if err != nil {
		rb.run(ctx)
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}
	if err := o.portal.SignUpAdmin(ctx, domain.PortalAccount{
		Username:   req.Owner,
		AccountID:  accountID,
		InstanceID: req.InstanceID,
	}); err != nil {
		rb.run(ctx)
		return domain.Instance{}, &domain.IdentityProvisioningError{Username: req.Owner, Cause: err}
	}

	return o.activate(ctx, rb, inst)
}

// UpdatePlan applies a plan change: resize the platform quota, then
// persist the new plan id. A failed persist rolls the quota back to the
// old plan; a failed rollback is fatal and surfaced as such.
func (o *Orchestrator) UpdatePlan(ctx context.Context, instanceID, planID string) (domain.Instance, error) {
	inst, err := o.repo.GetByID(ctx, instanceID)
	if err != nil {
		return domain.Instance{}, err
	}

	oldPlan, err := o.catalog.Plan(inst.PlanID)
	if err != nil {
		return domain.Instance{}, err
	}
	newPlan, err := o.catalog.Plan(planID)
	if err != nil {
		return domain.Instance{}, err
	}
	if newPlan.Weight < oldPlan.Weight {
		return domain.Instance{}, &domain.DowngradeError{Current: oldPlan.Name, Requested: newPlan.Name}
	}

	// Lifecycle guard: plan changes only apply to active instances.
	updating, err := o.validator.Apply(ctx, inst.Status, domain.EventPlanChange)
	if err != nil {
		return domain.Instance{}, err
	}
	settled, err := o.validator.Apply(ctx, updating, domain.EventPlanChangeComplete)
	if err != nil {
		return domain.Instance{}, err
	}

	resizable := inst.DashboardType == domain.DashboardUser
	if resizable {
		if err := o.platform.ReplaceResourceQuota(ctx, inst.Namespace, newPlan); err != nil {
			return domain.Instance{}, &domain.PlatformProvisioningError{Step: "resource quota", Cause: err}
		}
	}

	prev := inst
	inst.PlanID = planID
	inst.Status = settled

	if err := o.repo.Update(ctx, inst); err != nil {
		if resizable {
			if rerr := o.platform.ReplaceResourceQuota(ctx, inst.Namespace, oldPlan); rerr != nil {
				// Store and platform now disagree; there is nothing safe
				// left to do automatically.
				return domain.Instance{}, &domain.InconsistentStateError{InstanceID: instanceID, Cause: errors.Join(err, rerr)}
			}
		}
		if perr := o.repo.Update(ctx, prev); perr != nil {
			o.log.ErrorContext(ctx, "restoring previous plan id failed", "instance_id", instanceID, "error", perr)
		}
		return domain.Instance{}, &domain.RolledBackError{Cause: err}
	}

	o.publish(ctx, domain.EventPlanChangeComplete, inst)
	return inst, nil
}

// Delete tears down an instance. A missing store record with a live
// namespace is treated as divergence: the orphaned namespace is removed.
// Deleting an instance that exists nowhere is a no-op success. Identity
// accounts survive teardown.
func (o *Orchestrator) Delete(ctx context.Context, instanceID string) error {
	inst, err := o.repo.GetByID(ctx, instanceID)
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return o.deleteOrphan(ctx, instanceID)
	}
	if err != nil {
		return fmt.Errorf("loading instance: %w", err)
	}

	// A record already mid-teardown may be retried; anything else must
	// pass the lifecycle guard.
	if inst.Status != domain.StatusDeleting {
		if _, err := o.validator.Apply(ctx, inst.Status, domain.EventDelete); err != nil {
			return err
		}
	}

	if inst.DashboardType == domain.DashboardAdmin {
		if err := o.repo.Delete(ctx, inst.InstanceID); err != nil {
			return &domain.PersistenceError{Cause: err}
		}
		if err := o.portal.DeleteClusterAdmin(ctx); err != nil {
			return fmt.Errorf("revoking cluster admin: %w", err)
		}
	} else {
		if err := o.platform.DeleteNamespace(ctx, inst.Namespace); err != nil {
			return &domain.PlatformProvisioningError{Step: "delete namespace", Cause: err}
		}
		if err := o.repo.Delete(ctx, inst.InstanceID); err != nil {
			return &domain.PersistenceError{Cause: err}
		}
		if err := o.portal.DeleteNamespaceUsers(ctx, inst.Namespace); err != nil {
			return fmt.Errorf("revoking namespace users: %w", err)
		}
	}

	o.publish(ctx, domain.EventDelete, inst)
	return nil
}

// deleteOrphan handles teardown for an instance the store does not know.
// If the derived namespace still exists on the platform it is removed;
// otherwise the delete is a no-op success.
func (o *Orchestrator) deleteOrphan(ctx context.Context, instanceID string) error {
	ns := domain.NamespaceFor(instanceID)
	exists, err := o.platform.NamespaceExists(ctx, ns)
	if err != nil {
		return fmt.Errorf("checking namespace %q: %w", ns, err)
	}
	if !exists {
		return nil
	}
	o.log.InfoContext(ctx, "removing orphaned namespace", "instance_id", instanceID, "namespace", ns)
	if err := o.platform.DeleteNamespace(ctx, ns); err != nil {
		return &domain.PlatformProvisioningError{Step: "delete namespace", Cause: err}
	}
	return nil
}

// GetByID returns an instance by its unique identifier.
func (o *Orchestrator) GetByID(ctx context.Context, instanceID string) (domain.Instance, error) {
	return o.repo.GetByID(ctx, instanceID)
}

// List returns instances matching the given filter.
func (o *Orchestrator) List(ctx context.Context, filter domain.ListFilter) ([]domain.Instance, error) {
	return o.repo.List(ctx, filter)
}

// provisionNamespace creates the platform resources in fixed order. The
// namespace delete compensation covers every namespaced resource, so it
// is the only one pushed.
func (o *Orchestrator) provisionNamespace(ctx context.Context, rb *rollback, ns string, plan domain.Plan, account string) (string, error) {
	if err := o.platform.CreateNamespace(ctx, ns); err != nil {
		return "", &domain.PlatformProvisioningError{Step: "namespace", Cause: err}
	}
	rb.push("delete namespace", func(ctx context.Context) error {
		return o.platform.DeleteNamespace(ctx, ns)
	})

	steps := []struct {
		name string
		fn   func() error
	}{
		{"resource quota", func() error { return o.platform.CreateResourceQuota(ctx, ns, plan) }},
		{"limit range", func() error { return o.platform.CreateLimitRange(ctx, ns) }},
		{"init role", func() error { return o.platform.CreateRole(ctx, ns, o.cfg.InitRole) }},
		{"admin role", func() error { return o.platform.CreateRole(ctx, ns, o.cfg.AdminRole) }},
		{"registry secret", func() error { return o.platform.CreateRegistrySecret(ctx, ns) }},
		{"service account", func() error { return o.platform.CreateServiceAccount(ctx, ns, account) }},
		{"role binding", func() error { return o.platform.CreateRoleBinding(ctx, ns, o.cfg.AdminRole, account) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return "", &domain.PlatformProvisioningError{Step: step.name, Cause: err}
		}
	}

	token, err := o.platform.ServiceAccountToken(ctx, ns, account)
	if err != nil {
		return "", &domain.PlatformProvisioningError{Step: "service account token", Cause: err}
	}
	return token, nil
}

// resolveAccountID returns the identity account id, looking it up by
// username when the create call reported a pre-existing account.
func (o *Orchestrator) resolveAccountID(ctx context.Context, status domain.AccountStatus, username string) (string, error) {
	if status.AccountID != "" {
		return status.AccountID, nil
	}
	return o.identity.AccountID(ctx, username)
}

// activate promotes a freshly provisioned instance to active and
// publishes the terminal event.
func (o *Orchestrator) activate(ctx context.Context, rb *rollback, inst domain.Instance) (domain.Instance, error) {
	next, err := o.validator.Apply(ctx, inst.Status, domain.EventProvisionComplete)
	if err != nil {
		rb.run(ctx)
		return domain.Instance{}, err
	}
	inst.Status = next
	if err := o.repo.Update(ctx, inst); err != nil {
		rb.run(ctx)
		return domain.Instance{}, &domain.PersistenceError{Cause: err}
	}

	o.publish(ctx, domain.EventProvisionComplete, inst)
	return inst, nil
}

// publish emits a post-saga event. The saga already reached its terminal
// state, so a publish failure is logged, never surfaced.
func (o *Orchestrator) publish(ctx context.Context, event domain.Event, inst domain.Instance) {
	if err := o.publisher.Publish(ctx, event, inst); err != nil {
		o.log.ErrorContext(ctx, "publishing event failed", "event", string(event), "instance_id", inst.InstanceID, "error", err)
	}
}

func (o *Orchestrator) dashboardURL() string {
	return o.cfg.DashboardURL + "?sessionRefresh=true"
}
