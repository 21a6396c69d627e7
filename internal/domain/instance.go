package domain

import (
	"strings"
	"time"
)

// DashboardType categorizes an instance: one ADMIN instance may exist
// system-wide, at most one USER instance per organization.
type DashboardType string

const (
	DashboardAdmin DashboardType = "ADMIN"
	DashboardUser  DashboardType = "USER"
)

// Status represents the lifecycle state of an instance.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusActive       Status = "active"
	StatusUpdating     Status = "updating"
	StatusDeleting     Status = "deleting"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventProvisionComplete  Event = "provision_complete"
	EventPlanChange         Event = "plan_change"
	EventPlanChangeComplete Event = "plan_change_complete"
	EventDelete             Event = "delete"
)

// Transition defines a valid state change: an event moves an instance from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the instance lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventProvisionComplete, Src: StatusProvisioning, Dst: StatusActive},
	{Event: EventPlanChange, Src: StatusActive, Dst: StatusUpdating},
	{Event: EventPlanChangeComplete, Src: StatusUpdating, Dst: StatusActive},
	{Event: EventDelete, Src: StatusProvisioning, Dst: StatusDeleting},
	{Event: EventDelete, Src: StatusActive, Dst: StatusDeleting},
}

// Identity-provider roles assigned during provisioning.
const (
	RoleClusterAdmin   = "CLUSTER_ADMIN"
	RoleNamespaceAdmin = "NAMESPACE_ADMIN"
)

// Placeholder marks record fields that have no value for a given
// dashboard type (the admin instance owns no namespace or account).
const Placeholder = "-"

// Instance is the durable record of a provisioned tenant workspace.
type Instance struct {
	InstanceID     string
	OrganizationID string
	SpaceID        string
	PlanID         string
	Owner          string
	DashboardType  DashboardType
	Status         Status
	Namespace      string
	AccountName    string
	AccountToken   string
	DashboardURL   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NamespaceFor derives the cluster namespace owned by an instance.
// The name is a pure function of the instance id, so divergence between
// the store and the platform can be reconciled without a record.
func NamespaceFor(instanceID string) string {
	return "paas-" + strings.ToLower(instanceID) + "-caas"
}

// NewUserInstance creates a user-portal instance in the initial
// "provisioning" state. Account fields stay placeholders until the
// platform resources exist.
func NewUserInstance(instanceID, organizationID, spaceID, planID, owner string) Instance {
	now := time.Now().UTC()
	return Instance{
		InstanceID:     instanceID,
		OrganizationID: organizationID,
		SpaceID:        spaceID,
		PlanID:         planID,
		Owner:          owner,
		DashboardType:  DashboardUser,
		Status:         StatusProvisioning,
		Namespace:      NamespaceFor(instanceID),
		AccountName:    Placeholder,
		AccountToken:   Placeholder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewAdminInstance creates an admin-portal instance. Admin instances own
// no namespace; all platform-scoped fields are placeholders.
func NewAdminInstance(instanceID, organizationID, spaceID, planID, owner string) Instance {
	now := time.Now().UTC()
	return Instance{
		InstanceID:     instanceID,
		OrganizationID: organizationID,
		SpaceID:        spaceID,
		PlanID:         planID,
		Owner:          owner,
		DashboardType:  DashboardAdmin,
		Status:         StatusProvisioning,
		Namespace:      Placeholder,
		AccountName:    Placeholder,
		AccountToken:   Placeholder,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
