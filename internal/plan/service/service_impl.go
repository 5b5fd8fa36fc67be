package service

import (
	"context"
	"errors"

	"github.com/astralhq/keychain/internal/clock"
	ledgerdomain "github.com/astralhq/keychain/internal/ledger/domain"
	ownerdomain "github.com/astralhq/keychain/internal/owner/domain"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/scope"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		clock: p.Clock,
	}
}

func (s *Service) GetPlanID(ctx context.Context, sc scope.Scope, allowProjectFallback bool) (*uuid.UUID, error) {
	switch sc.Kind {
	case scope.KindProfile:
		return s.activePlanID(ctx, "profiles", sc.ID)
	case scope.KindOrganization:
		return s.activePlanID(ctx, "organizations", sc.ID)
	case scope.KindProject:
		if !allowProjectFallback {
			return nil, plandomain.ErrUnsupportedScope
		}
		var count int64
		err := s.db.WithContext(ctx).
			Table("projects").
			Where("id = ?", sc.ID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, nil
		}
		id := sc.ID
		return &id, nil
	default:
		return nil, scope.ErrInvalidScope
	}
}

func (s *Service) activePlanID(ctx context.Context, table string, id uuid.UUID) (*uuid.UUID, error) {
	var row struct {
		ActivePlanID *uuid.UUID
	}
	err := s.db.WithContext(ctx).
		Table(table).
		Select("active_plan_id").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		// Unknown owner resolves to no plan, not an error.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row.ActivePlanID, nil
}

func (s *Service) GetOwnerTier(ctx context.Context, sc scope.Scope) (plandomain.Tier, error) {
	var table string
	switch sc.Kind {
	case scope.KindProfile:
		table = "profiles"
	case scope.KindOrganization:
		table = "organizations"
	default:
		return plandomain.TierFree, nil
	}

	var row struct {
		Tier plandomain.Tier
	}
	err := s.db.WithContext(ctx).
		Table(table).
		Select("tier").
		Where("id = ?", sc.ID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return plandomain.TierFree, nil
		}
		return "", err
	}
	if !row.Tier.Valid() {
		return plandomain.TierFree, nil
	}
	return row.Tier, nil
}

func (s *Service) FetchOwnerPlan(ctx context.Context, overrideID string, planType plandomain.PlanType) (*plandomain.Plan, error) {
	if !planType.Valid() {
		return nil, plandomain.ErrInvalidPlanType
	}

	if overrideID != "" {
		if id, err := uuid.Parse(overrideID); err == nil {
			var plan plandomain.Plan
			err := s.db.WithContext(ctx).
				Preload("RateLimits").
				Where("id = ?", id).
				Take(&plan).Error
			if err == nil {
				return &plan, nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			s.log.Warn("plan.override_not_found", zap.String("plan_id", overrideID))
		}
	}

	var plan plandomain.Plan
	err := s.db.WithContext(ctx).
		Preload("RateLimits").
		Where("type = ? AND is_default = ?", planType, true).
		Take(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, plandomain.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (s *Service) FetchAllPlans(ctx context.Context) (map[plandomain.PlanType][]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := s.db.WithContext(ctx).
		Preload("RateLimits").
		Where("currently_available = ?", true).
		Order("created_at ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}

	out := make(map[plandomain.PlanType][]plandomain.Plan, 2)
	for _, plan := range plans {
		out[plan.Type] = append(out[plan.Type], plan)
	}
	return out, nil
}

// ApplyPlanToOwner swaps the owner onto the plan and resets credit to the
// plan's starting balance, recording the movement in the credit ledger. The
// owner update and the ledger append share one transaction.
func (s *Service) ApplyPlanToOwner(ctx context.Context, sc scope.Scope, plan *plandomain.Plan) error {
	if plan == nil {
		return plandomain.ErrPlanNotFound
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := &ledgerdomain.Entry{
			Balance:    plan.StartingCredit,
			Reason:     ledgerdomain.ReasonAdd,
			RecordedAt: now,
		}

		switch sc.Kind {
		case scope.KindProfile:
			var profile ownerdomain.Profile
			if err := tx.Where("id = ?", sc.ID).Take(&profile).Error; err != nil {
				return err
			}
			entry.ProfileID = &profile.ID
			entry.Delta = plan.StartingCredit.Sub(profile.CreditBalance)

			err := tx.Model(&ownerdomain.Profile{}).Where("id = ?", sc.ID).Updates(map[string]any{
				"tier":                      plan.Tier,
				"active_plan_id":            plan.ID,
				"credit_balance":            plan.StartingCredit,
				"credit_balance_updated_at": now,
				"updated_at":                now,
			}).Error
			if err != nil {
				return err
			}
		case scope.KindOrganization:
			var org ownerdomain.Organization
			if err := tx.Where("id = ?", sc.ID).Take(&org).Error; err != nil {
				return err
			}
			entry.OrganizationID = &org.ID
			entry.Delta = plan.StartingCredit.Sub(org.CreditBalance)

			err := tx.Model(&ownerdomain.Organization{}).Where("id = ?", sc.ID).Updates(map[string]any{
				"tier":                      plan.Tier,
				"active_plan_id":            plan.ID,
				"credit_balance":            plan.StartingCredit,
				"credit_balance_updated_at": now,
				"updated_at":                now,
			}).Error
			if err != nil {
				return err
			}
		default:
			return plandomain.ErrUnsupportedScope
		}

		if err := ledgerdomain.AppendTx(ctx, tx, entry); err != nil {
			return err
		}

		s.log.Info("plan.applied",
			zap.String("scope", sc.String()),
			zap.String("plan_id", plan.ID.String()),
			zap.String("tier", string(plan.Tier)),
		)
		return nil
	})
}

func (s *Service) GetRateLimit(ctx context.Context, planID uuid.UUID, metric usagedomain.Metric, granularity usagedomain.Granularity) (*plandomain.RateLimit, error) {
	var limit plandomain.RateLimit
	err := s.db.WithContext(ctx).
		Where("plan_id = ? AND metric = ? AND granularity = ?", planID, metric, granularity).
		Take(&limit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &limit, nil
}
