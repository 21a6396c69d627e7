package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrPlanNotFound     = errors.New("plan not found")
)

// AlreadyExistsError is returned when an instance id is already taken,
// or when a second admin instance is requested.
type AlreadyExistsError struct {
	InstanceID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("instance %q already exists", e.InstanceID)
}

// OrgQuotaError is returned when an organization already holds its one
// allowed user instance.
type OrgQuotaError struct {
	OrganizationID string
}

func (e *OrgQuotaError) Error() string {
	return fmt.Sprintf("organization %q already has a provisioned instance", e.OrganizationID)
}

// NamespaceCollisionError is returned when the derived namespace already
// exists on the platform, independent of the store.
type NamespaceCollisionError struct {
	Namespace string
}

func (e *NamespaceCollisionError) Error() string {
	return fmt.Sprintf("namespace %q already exists on the platform", e.Namespace)
}

// InvalidOrganizationError is returned when an admin-portal request
// comes from an organization other than the configured one.
type InvalidOrganizationError struct {
	OrganizationID string
}

func (e *InvalidOrganizationError) Error() string {
	return fmt.Sprintf("organization %q is not allowed to provision the admin portal", e.OrganizationID)
}

// DowngradeError is returned when a plan change would lower the weight.
type DowngradeError struct {
	Current   string
	Requested string
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("cannot change to a lower plan (current: %s / new: %s)", e.Current, e.Requested)
}

// TransitionError is returned when a lifecycle transition is not allowed.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// IdentityProvisioningError is returned when the identity provider or
// the portal user registration fails during a saga.
type IdentityProvisioningError struct {
	Username string
	Cause    error
}

func (e *IdentityProvisioningError) Error() string {
	return fmt.Sprintf("identity provisioning for %q failed: %v", e.Username, e.Cause)
}

func (e *IdentityProvisioningError) Unwrap() error { return e.Cause }

// PlatformProvisioningError is returned when a platform resource step
// fails during a saga.
type PlatformProvisioningError struct {
	Step  string
	Cause error
}

func (e *PlatformProvisioningError) Error() string {
	return fmt.Sprintf("platform step %q failed: %v", e.Step, e.Cause)
}

func (e *PlatformProvisioningError) Unwrap() error { return e.Cause }

// ConflictError is returned when the store's uniqueness constraint
// rejects the final persist: a concurrent saga won the race.
type ConflictError struct {
	InstanceID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent creation conflict for instance %q", e.InstanceID)
}

// PersistenceError is returned when a store write fails and no platform
// state had to be rolled back.
type PersistenceError struct {
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting instance record failed: %v", e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// RolledBackError is returned when the plan-change persist failed and
// the platform quota was restored to the previous plan.
type RolledBackError struct {
	Cause error
}

func (e *RolledBackError) Error() string {
	return fmt.Sprintf("persisting plan change failed, previous plan restored: %v", e.Cause)
}

func (e *RolledBackError) Unwrap() error { return e.Cause }

// InconsistentStateError is fatal: the plan-change persist failed and
// the compensating resize failed too, leaving the store and the
// platform divergent. Operator intervention is required.
type InconsistentStateError struct {
	InstanceID string
	Cause      error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("instance %q left inconsistent between store and platform: %v", e.InstanceID, e.Cause)
}

func (e *InconsistentStateError) Unwrap() error { return e.Cause }
