package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

const tracerName = "github.com/K-PaaS/cp-portal-service-broker/internal/adapter/otel"

// TracingRepository wraps a domain.InstanceRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.InstanceRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.InstanceRepository.
var _ domain.InstanceRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.InstanceRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, inst domain.Instance) error {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.Create",
		trace.WithAttributes(
			attribute.String("instance.id", inst.InstanceID),
			attribute.String("instance.organization_id", inst.OrganizationID),
			attribute.String("instance.dashboard_type", string(inst.DashboardType)),
		),
	)
	defer span.End()

	err := r.next.Create(ctx, inst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) GetByID(ctx context.Context, instanceID string) (domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.GetByID",
		trace.WithAttributes(attribute.String("instance.id", instanceID)),
	)
	defer span.End()

	inst, err := r.next.GetByID(ctx, instanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return inst, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Instance, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.DashboardType != nil {
		span.SetAttributes(attribute.String("filter.dashboard_type", string(*filter.DashboardType)))
	}

	instances, err := r.next.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(instances)))
	}
	return instances, err
}

func (r *TracingRepository) Update(ctx context.Context, inst domain.Instance) error {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.Update",
		trace.WithAttributes(
			attribute.String("instance.id", inst.InstanceID),
			attribute.String("instance.status", string(inst.Status)),
		),
	)
	defer span.End()

	err := r.next.Update(ctx, inst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) Delete(ctx context.Context, instanceID string) error {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.Delete",
		trace.WithAttributes(attribute.String("instance.id", instanceID)),
	)
	defer span.End()

	err := r.next.Delete(ctx, instanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) ExistsByOrganization(ctx context.Context, organizationID string, t domain.DashboardType) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.ExistsByOrganization",
		trace.WithAttributes(
			attribute.String("instance.organization_id", organizationID),
			attribute.String("instance.dashboard_type", string(t)),
		),
	)
	defer span.End()

	exists, err := r.next.ExistsByOrganization(ctx, organizationID, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return exists, err
}

func (r *TracingRepository) ExistsByType(ctx context.Context, t domain.DashboardType) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "InstanceRepository.ExistsByType",
		trace.WithAttributes(attribute.String("instance.dashboard_type", string(t))),
	)
	defer span.End()

	exists, err := r.next.ExistsByType(ctx, t)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return exists, err
}
