package seed

import (
	"fmt"
	"testing"

	"github.com/astralhq/keychain/internal/config"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestEnsureDefaultPlansCreatesMissingDefaults(t *testing.T) {
	db := setupSeedDB(t)

	if err := EnsureDefaultPlans(db, config.DefaultQuotaDefaults()); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var plans int64
	if err := db.Model(&plandomain.Plan{}).Where("is_default = ?", true).Count(&plans).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if plans != 2 {
		t.Fatalf("expected 2 default plans, got %d", plans)
	}

	var limits int64
	if err := db.Model(&plandomain.RateLimit{}).Count(&limits).Error; err != nil {
		t.Fatalf("count limits: %v", err)
	}
	if limits != 8 {
		t.Fatalf("expected 8 rate limit rows, got %d", limits)
	}
}

func TestEnsureDefaultPlansIsIdempotent(t *testing.T) {
	db := setupSeedDB(t)
	defaults := config.DefaultQuotaDefaults()

	if err := EnsureDefaultPlans(db, defaults); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := EnsureDefaultPlans(db, defaults); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var plans int64
	if err := db.Model(&plandomain.Plan{}).Count(&plans).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if plans != 2 {
		t.Fatalf("expected seeding to stay idempotent, got %d plans", plans)
	}
}

func TestEnsureDefaultPlansRejectsInvalidSpec(t *testing.T) {
	db := setupSeedDB(t)

	err := EnsureDefaultPlans(db, config.QuotaDefaults{
		Plans: []config.DefaultPlanSpec{{Name: "Broken", Type: "team"}},
	})
	if err != plandomain.ErrInvalidPlanType {
		t.Fatalf("expected ErrInvalidPlanType, got %v", err)
	}

	err = EnsureDefaultPlans(db, config.QuotaDefaults{
		Plans: []config.DefaultPlanSpec{{
			Name:   "Bad Limit",
			Type:   "individual",
			Limits: []config.RateLimitSpec{{Metric: "unknown_metric", Granularity: "day", Value: 1}},
		}},
	})
	if err == nil {
		t.Fatal("expected invalid metric to fail seeding")
	}

	// The failed transaction must not leave partial rows behind.
	var plans int64
	if err := db.Model(&plandomain.Plan{}).Count(&plans).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	if plans != 0 {
		t.Fatalf("expected rollback, got %d plans", plans)
	}
}

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.Exec(`CREATE TABLE plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		is_default BOOLEAN NOT NULL DEFAULT 0,
		starting_credit DECIMAL NOT NULL DEFAULT 0,
		monthly_credit DECIMAL DEFAULT 0,
		features TEXT,
		currently_available BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create plans: %v", err)
	}
	if err := db.Exec(`CREATE TABLE tier_rate_limits (
		plan_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		granularity TEXT NOT NULL DEFAULT 'all_time',
		value BIGINT NOT NULL,
		UNIQUE (plan_id, metric, granularity)
	)`).Error; err != nil {
		t.Fatalf("create tier_rate_limits: %v", err)
	}
	return db
}
