package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries the data needed to process a provisioning event
// asynchronously. River serializes this as JSON into its job queue table.
// It includes a snapshot of the instance at the time the event was
// published, so the worker never needs to query the database.
type EventJobArgs struct {
	Event          string `json:"event"`
	InstanceID     string `json:"instance_id"`
	OrganizationID string `json:"organization_id"`
	PlanID         string `json:"plan_id"`
	DashboardType  string `json:"dashboard_type"`
	Status         string `json:"status"`
	Namespace      string `json:"namespace"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "instance.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a provisioning event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, inst domain.Instance) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:          string(event),
		InstanceID:     inst.InstanceID,
		OrganizationID: inst.OrganizationID,
		PlanID:         inst.PlanID,
		DashboardType:  string(inst.DashboardType),
		Status:         string(inst.Status),
		Namespace:      inst.Namespace,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
