// Package seed provisions the default plan catalog at startup. Quota
// evaluation requires a default plan per type to exist; without one,
// FetchOwnerPlan has nothing to fall back to.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/astralhq/keychain/internal/config"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EnsureDefaultPlans creates the configured default plans and their rate
// limits when no default exists yet for the plan type. Idempotent; existing
// defaults are left untouched.
func EnsureDefaultPlans(db *gorm.DB, defaults config.QuotaDefaults) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, spec := range defaults.Plans {
			if err := ensurePlanTx(ctx, tx, spec); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, spec config.DefaultPlanSpec) error {
	planType := plandomain.PlanType(strings.TrimSpace(spec.Type))
	if !planType.Valid() {
		return plandomain.ErrInvalidPlanType
	}

	var existing plandomain.Plan
	err := tx.WithContext(ctx).
		Where("type = ? AND is_default = ?", planType, true).
		First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	tier := plandomain.Tier(strings.TrimSpace(spec.Tier))
	if !tier.Valid() {
		tier = plandomain.TierFree
	}

	now := time.Now().UTC()
	plan := plandomain.Plan{
		ID:                 uuid.New(),
		Name:               spec.Name,
		Type:               planType,
		Tier:               tier,
		IsDefault:          true,
		StartingCredit:     parseCredit(spec.StartingCredit),
		MonthlyCredit:      parseCredit(spec.MonthlyCredit),
		CurrentlyAvailable: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
		return err
	}

	for _, limit := range spec.Limits {
		metric := usagedomain.Metric(strings.TrimSpace(limit.Metric))
		granularity := usagedomain.Granularity(strings.TrimSpace(limit.Granularity))
		if !metric.Valid() || !granularity.Valid() {
			return usagedomain.ErrInvalidMetric
		}
		row := plandomain.RateLimit{
			PlanID:      plan.ID,
			Metric:      metric,
			Granularity: granularity,
			Value:       limit.Value,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func parseCredit(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}
