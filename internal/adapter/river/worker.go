package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// EventWorker processes provisioning event jobs from the River queue.
// For now it logs the event; future versions will dispatch to billing,
// audit trails, or notification systems.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	slog.InfoContext(ctx, "processing event",
		"event", job.Args.Event,
		"instance_id", job.Args.InstanceID,
		"organization_id", job.Args.OrganizationID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
