package domain

import (
	"context"

	"github.com/astralhq/keychain/internal/scope"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/google/uuid"
)

type Service interface {
	// GetPlanID resolves the active plan id for the scope, or nil when the
	// owner has no plan (meaning: unlimited). Project scopes resolve only
	// when allowProjectFallback is set, in which case the project's own id
	// stands in for a plan id.
	//
	// TODO: project-scoped plan resolution inherits the project-id fallback
	// from the first iteration of the platform; replace it once projects
	// carry a real plan assignment.
	GetPlanID(ctx context.Context, sc scope.Scope, allowProjectFallback bool) (*uuid.UUID, error)

	// GetOwnerTier returns the owner's tier, defaulting to free when the
	// owner cannot be resolved.
	GetOwnerTier(ctx context.Context, sc scope.Scope) (Tier, error)

	// FetchOwnerPlan returns the plan with overrideID when given, otherwise
	// the default plan for planType. Fails with ErrPlanNotFound when
	// neither resolves.
	FetchOwnerPlan(ctx context.Context, overrideID string, planType PlanType) (*Plan, error)

	// FetchAllPlans returns currently-available plans partitioned by type.
	FetchAllPlans(ctx context.Context) (map[PlanType][]Plan, error)

	// ApplyPlanToOwner sets the owner's active plan and tier and resets the
	// credit balance to the plan's starting credit, appending a credit
	// ledger entry, all in one transaction. Only profile and organization
	// scopes carry plans.
	ApplyPlanToOwner(ctx context.Context, sc scope.Scope, plan *Plan) error

	// GetRateLimit returns the limit row for (plan, metric, granularity),
	// or nil when none is configured.
	GetRateLimit(ctx context.Context, planID uuid.UUID, metric usagedomain.Metric, granularity usagedomain.Granularity) (*RateLimit, error)
}
