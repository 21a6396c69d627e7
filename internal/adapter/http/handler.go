package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/K-PaaS/cp-portal-service-broker/internal/app"
	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// PlanLister exposes the plan catalog to the service catalog endpoint.
type PlanLister interface {
	Plans() []domain.Plan
}

// InstanceResponse is the API representation of a provisioned instance.
type InstanceResponse struct {
	InstanceID     string `json:"instance_id" doc:"Unique instance identifier"`
	OrganizationID string `json:"organization_id" doc:"Owning organization"`
	SpaceID        string `json:"space_id" doc:"Owning space"`
	PlanID         string `json:"plan_id" doc:"Sizing plan"`
	DashboardType  string `json:"dashboard_type" doc:"ADMIN or USER"`
	Status         string `json:"status" doc:"Lifecycle state"`
	Namespace      string `json:"namespace" doc:"Cluster namespace owned by the instance"`
	DashboardURL   string `json:"dashboard_url" doc:"Portal dashboard URL"`
	CreatedAt      string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt      string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toInstanceResponse(inst domain.Instance) InstanceResponse {
	return InstanceResponse{
		InstanceID:     inst.InstanceID,
		OrganizationID: inst.OrganizationID,
		SpaceID:        inst.SpaceID,
		PlanID:         inst.PlanID,
		DashboardType:  string(inst.DashboardType),
		Status:         string(inst.Status),
		Namespace:      inst.Namespace,
		DashboardURL:   inst.DashboardURL,
		CreatedAt:      inst.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      inst.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// --- Provision ---

type ProvisionInput struct {
	InstanceID string `path:"instance_id" doc:"Instance ID"`
	Body       struct {
		OrganizationGUID string `json:"organization_guid" minLength:"1" doc:"Owning organization"`
		SpaceGUID        string `json:"space_guid" minLength:"1" doc:"Owning space"`
		PlanID           string `json:"plan_id" minLength:"1" doc:"Sizing plan"`
		Parameters       struct {
			Owner  string `json:"owner" format:"email" doc:"Email of the workspace owner"`
			Portal string `json:"portal,omitempty" default:"user" enum:"user,admin" doc:"Portal variant to provision"`
		} `json:"parameters"`
	}
}

type ProvisionOutput struct {
	Body InstanceResponse
}

// --- Update ---

type UpdateInput struct {
	InstanceID string `path:"instance_id" doc:"Instance ID"`
	Body       struct {
		PlanID string `json:"plan_id" minLength:"1" doc:"New sizing plan"`
	}
}

type UpdateOutput struct {
	Body InstanceResponse
}

// --- Deprovision ---

type DeprovisionInput struct {
	InstanceID string `path:"instance_id" doc:"Instance ID"`
}

type DeprovisionOutput struct {
	Body struct{}
}

// --- Get ---

type GetInstanceInput struct {
	InstanceID string `path:"instance_id" doc:"Instance ID"`
}

type GetInstanceOutput struct {
	Body InstanceResponse
}

// --- List ---

type ListInstancesInput struct {
	DashboardType string `query:"dashboard_type" required:"false" enum:",ADMIN,USER" doc:"Filter by dashboard type"`
	Limit         int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset        int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListInstancesOutput struct {
	Body []InstanceResponse
}

// --- Catalog ---

type PlanResponse struct {
	ID     string `json:"id" doc:"Plan identifier"`
	Name   string `json:"name" doc:"Display name"`
	Weight int    `json:"weight" doc:"Ordering weight; changes to a lower weight are rejected"`
	Memory string `json:"memory" doc:"Namespace memory limit"`
	Disk   string `json:"disk" doc:"Namespace storage request"`
}

type CatalogOutput struct {
	Body struct {
		Plans []PlanResponse `json:"plans"`
	}
}

// Register adds all service broker routes to the Huma API.
func Register(api huma.API, orch *app.Orchestrator, plans PlanLister) {
	huma.Register(api, huma.Operation{
		OperationID: "provision-instance",
		Method:      http.MethodPut,
		Path:        "/v2/service_instances/{instance_id}",
		Summary:     "Provision a workspace instance",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *ProvisionInput) (*ProvisionOutput, error) {
		req := app.CreateRequest{
			InstanceID:     input.InstanceID,
			OrganizationID: input.Body.OrganizationGUID,
			SpaceID:        input.Body.SpaceGUID,
			PlanID:         input.Body.PlanID,
			Owner:          input.Body.Parameters.Owner,
		}

		var inst domain.Instance
		var err error
		if input.Body.Parameters.Portal == "admin" {
			inst, err = orch.CreateAdminInstance(ctx, req)
		} else {
			inst, err = orch.CreateUserInstance(ctx, req)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ProvisionOutput{Body: toInstanceResponse(inst)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-instance",
		Method:      http.MethodPatch,
		Path:        "/v2/service_instances/{instance_id}",
		Summary:     "Change an instance's plan",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *UpdateInput) (*UpdateOutput, error) {
		inst, err := orch.UpdatePlan(ctx, input.InstanceID, input.Body.PlanID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &UpdateOutput{Body: toInstanceResponse(inst)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deprovision-instance",
		Method:      http.MethodDelete,
		Path:        "/v2/service_instances/{instance_id}",
		Summary:     "Tear down a workspace instance",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *DeprovisionInput) (*DeprovisionOutput, error) {
		if err := orch.Delete(ctx, input.InstanceID); err != nil {
			return nil, toHumaError(err)
		}
		return &DeprovisionOutput{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-instance",
		Method:      http.MethodGet,
		Path:        "/v2/service_instances/{instance_id}",
		Summary:     "Get an instance by ID",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *GetInstanceInput) (*GetInstanceOutput, error) {
		inst, err := orch.GetByID(ctx, input.InstanceID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetInstanceOutput{Body: toInstanceResponse(inst)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-instances",
		Method:      http.MethodGet,
		Path:        "/v2/service_instances",
		Summary:     "List instances",
		Tags:        []string{"Instances"},
	}, func(ctx context.Context, input *ListInstancesInput) (*ListInstancesOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.DashboardType != "" {
			dt := domain.DashboardType(input.DashboardType)
			filter.DashboardType = &dt
		}

		instances, err := orch.List(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]InstanceResponse, len(instances))
		for i, inst := range instances {
			resp[i] = toInstanceResponse(inst)
		}
		return &ListInstancesOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-catalog",
		Method:      http.MethodGet,
		Path:        "/v2/catalog",
		Summary:     "List available plans",
		Tags:        []string{"Catalog"},
	}, func(ctx context.Context, _ *struct{}) (*CatalogOutput, error) {
		out := &CatalogOutput{}
		for _, plan := range plans.Plans() {
			out.Body.Plans = append(out.Body.Plans, PlanResponse{
				ID:     plan.ID,
				Name:   plan.Name,
				Weight: plan.Weight,
				Memory: plan.Memory,
				Disk:   plan.Disk,
			})
		}
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrInstanceNotFound) {
		return huma.Error404NotFound("instance not found")
	}
	if errors.Is(err, domain.ErrPlanNotFound) {
		return huma.Error422UnprocessableEntity("plan not found")
	}

	var existsErr *domain.AlreadyExistsError
	if errors.As(err, &existsErr) {
		return huma.Error409Conflict(existsErr.Error())
	}
	var quotaErr *domain.OrgQuotaError
	if errors.As(err, &quotaErr) {
		return huma.Error409Conflict(quotaErr.Error())
	}
	var collisionErr *domain.NamespaceCollisionError
	if errors.As(err, &collisionErr) {
		return huma.Error409Conflict(collisionErr.Error())
	}
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var orgErr *domain.InvalidOrganizationError
	if errors.As(err, &orgErr) {
		return huma.Error422UnprocessableEntity(orgErr.Error())
	}
	var downgradeErr *domain.DowngradeError
	if errors.As(err, &downgradeErr) {
		return huma.Error422UnprocessableEntity(downgradeErr.Error())
	}
	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var identityErr *domain.IdentityProvisioningError
	if errors.As(err, &identityErr) {
		return huma.Error502BadGateway(identityErr.Error())
	}
	var platformErr *domain.PlatformProvisioningError
	if errors.As(err, &platformErr) {
		return huma.Error502BadGateway(platformErr.Error())
	}
	var rolledBack *domain.RolledBackError
	if errors.As(err, &rolledBack) {
		return huma.Error502BadGateway(rolledBack.Error())
	}

	var inconsistent *domain.InconsistentStateError
	if errors.As(err, &inconsistent) {
		return huma.Error500InternalServerError(inconsistent.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
