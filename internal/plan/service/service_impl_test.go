package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/astralhq/keychain/internal/clock"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/scope"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestGetPlanIDResolvesProfileAndOrganization(t *testing.T) {
	svc, db := setupPlanService(t)
	planID := uuid.New()
	profileID := seedProfile(t, db, &planID, "tier1", "10.00")
	orgID := seedOrganization(t, db, nil, "free", "0")

	got, err := svc.GetPlanID(context.Background(), scope.Scope{Kind: scope.KindProfile, ID: profileID}, false)
	if err != nil {
		t.Fatalf("profile plan id: %v", err)
	}
	if got == nil || *got != planID {
		t.Fatalf("expected plan %s, got %v", planID, got)
	}

	got, err = svc.GetPlanID(context.Background(), scope.Scope{Kind: scope.KindOrganization, ID: orgID}, false)
	if err != nil {
		t.Fatalf("org plan id: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil plan for org without one, got %v", got)
	}
}

func TestGetPlanIDUnknownOwnerFailsOpen(t *testing.T) {
	svc, _ := setupPlanService(t)

	got, err := svc.GetPlanID(context.Background(), scope.Scope{Kind: scope.KindProfile, ID: uuid.New()}, false)
	if err != nil {
		t.Fatalf("unknown profile: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil plan for unknown profile, got %v", got)
	}
}

func TestGetPlanIDProjectFallback(t *testing.T) {
	svc, db := setupPlanService(t)
	projectID := seedProject(t, db)
	sc := scope.Scope{Kind: scope.KindProject, ID: projectID}

	if _, err := svc.GetPlanID(context.Background(), sc, false); err != plandomain.ErrUnsupportedScope {
		t.Fatalf("expected unsupported scope without fallback, got %v", err)
	}

	got, err := svc.GetPlanID(context.Background(), sc, true)
	if err != nil {
		t.Fatalf("project fallback: %v", err)
	}
	if got == nil || *got != projectID {
		t.Fatalf("expected the project id as fallback plan id, got %v", got)
	}

	got, err = svc.GetPlanID(context.Background(), scope.Scope{Kind: scope.KindProject, ID: uuid.New()}, true)
	if err != nil {
		t.Fatalf("unknown project: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown project, got %v", got)
	}
}

func TestGetOwnerTierDefaultsToFree(t *testing.T) {
	svc, db := setupPlanService(t)
	profileID := seedProfile(t, db, nil, "tier3", "0")

	tier, err := svc.GetOwnerTier(context.Background(), scope.Scope{Kind: scope.KindProfile, ID: profileID})
	if err != nil {
		t.Fatalf("owner tier: %v", err)
	}
	if tier != plandomain.Tier3 {
		t.Fatalf("expected tier3, got %s", tier)
	}

	tier, err = svc.GetOwnerTier(context.Background(), scope.Scope{Kind: scope.KindProfile, ID: uuid.New()})
	if err != nil {
		t.Fatalf("unknown owner tier: %v", err)
	}
	if tier != plandomain.TierFree {
		t.Fatalf("expected free for unknown owner, got %s", tier)
	}

	tier, err = svc.GetOwnerTier(context.Background(), scope.Scope{Kind: scope.KindProject, ID: uuid.New()})
	if err != nil {
		t.Fatalf("project tier: %v", err)
	}
	if tier != plandomain.TierFree {
		t.Fatalf("expected free for project scopes, got %s", tier)
	}
}

func TestFetchOwnerPlanPrefersOverride(t *testing.T) {
	svc, db := setupPlanService(t)
	defaultID := seedPlan(t, db, "Free", plandomain.PlanTypeIndividual, true, "0")
	overrideID := seedPlan(t, db, "Pro", plandomain.PlanTypeIndividual, false, "25.00")

	plan, err := svc.FetchOwnerPlan(context.Background(), overrideID.String(), plandomain.PlanTypeIndividual)
	if err != nil {
		t.Fatalf("fetch with override: %v", err)
	}
	if plan.ID != overrideID {
		t.Fatalf("expected override plan, got %s", plan.ID)
	}

	plan, err = svc.FetchOwnerPlan(context.Background(), "", plandomain.PlanTypeIndividual)
	if err != nil {
		t.Fatalf("fetch default: %v", err)
	}
	if plan.ID != defaultID {
		t.Fatalf("expected default plan, got %s", plan.ID)
	}

	// A dangling override falls back to the default.
	plan, err = svc.FetchOwnerPlan(context.Background(), uuid.NewString(), plandomain.PlanTypeIndividual)
	if err != nil {
		t.Fatalf("fetch with dangling override: %v", err)
	}
	if plan.ID != defaultID {
		t.Fatalf("expected default plan for dangling override, got %s", plan.ID)
	}
}

func TestFetchOwnerPlanMissingDefault(t *testing.T) {
	svc, _ := setupPlanService(t)

	if _, err := svc.FetchOwnerPlan(context.Background(), "", plandomain.PlanTypeOrganization); err != plandomain.ErrPlanNotFound {
		t.Fatalf("expected plan not found, got %v", err)
	}
}

func TestFetchAllPlansPartitionsByType(t *testing.T) {
	svc, db := setupPlanService(t)
	seedPlan(t, db, "Free", plandomain.PlanTypeIndividual, true, "0")
	seedPlan(t, db, "Pro", plandomain.PlanTypeIndividual, false, "25.00")
	seedPlan(t, db, "Team Free", plandomain.PlanTypeOrganization, true, "0")
	hidden := seedPlan(t, db, "Legacy", plandomain.PlanTypeOrganization, false, "0")
	if err := db.Exec(`UPDATE plans SET currently_available = 0 WHERE id = ?`, hidden).Error; err != nil {
		t.Fatalf("hide plan: %v", err)
	}

	plans, err := svc.FetchAllPlans(context.Background())
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(plans[plandomain.PlanTypeIndividual]) != 2 {
		t.Fatalf("expected 2 individual plans, got %d", len(plans[plandomain.PlanTypeIndividual]))
	}
	if len(plans[plandomain.PlanTypeOrganization]) != 1 {
		t.Fatalf("expected 1 organization plan, got %d", len(plans[plandomain.PlanTypeOrganization]))
	}
}

func TestApplyPlanToOwnerResetsCreditAndAppendsLedger(t *testing.T) {
	svc, db := setupPlanService(t)
	profileID := seedProfile(t, db, nil, "free", "4.00")
	planID := seedPlan(t, db, "Pro", plandomain.PlanTypeIndividual, false, "25.00")

	var plan plandomain.Plan
	if err := db.Where("id = ?", planID).Take(&plan).Error; err != nil {
		t.Fatalf("load plan: %v", err)
	}
	plan.Tier = plandomain.Tier1

	sc := scope.Scope{Kind: scope.KindProfile, ID: profileID}
	if err := svc.ApplyPlanToOwner(context.Background(), sc, &plan); err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	var row struct {
		Tier          string
		ActivePlanID  uuid.UUID
		CreditBalance decimal.Decimal
	}
	err := db.Table("profiles").
		Select("tier, active_plan_id, credit_balance").
		Where("id = ?", profileID).
		Take(&row).Error
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if row.ActivePlanID != planID {
		t.Fatalf("expected active plan %s, got %s", planID, row.ActivePlanID)
	}
	if !row.CreditBalance.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected balance 25.00, got %s", row.CreditBalance)
	}

	var ledger struct {
		Delta   decimal.Decimal
		Balance decimal.Decimal
		Reason  string
	}
	err = db.Table("credit_ledger").
		Select("delta, balance, reason").
		Where("profile_id = ?", profileID).
		Take(&ledger).Error
	if err != nil {
		t.Fatalf("load ledger entry: %v", err)
	}
	if !ledger.Delta.Equal(decimal.RequireFromString("21.00")) {
		t.Fatalf("expected delta 21.00, got %s", ledger.Delta)
	}
	if !ledger.Balance.Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("expected ledger balance 25.00, got %s", ledger.Balance)
	}
}

func TestGetRateLimitAbsentMeansNil(t *testing.T) {
	svc, db := setupPlanService(t)
	planID := seedPlan(t, db, "Free", plandomain.PlanTypeIndividual, true, "0")
	seedRateLimit(t, db, planID, usagedomain.MetricAPIRequests, usagedomain.GranularityDay, 100)

	limit, err := svc.GetRateLimit(context.Background(), planID, usagedomain.MetricAPIRequests, usagedomain.GranularityDay)
	if err != nil {
		t.Fatalf("get rate limit: %v", err)
	}
	if limit == nil || limit.Value != 100 {
		t.Fatalf("expected limit 100, got %v", limit)
	}

	limit, err = svc.GetRateLimit(context.Background(), planID, usagedomain.MetricAPITokens, usagedomain.GranularityDay)
	if err != nil {
		t.Fatalf("get missing limit: %v", err)
	}
	if limit != nil {
		t.Fatalf("expected nil for unconfigured limit, got %v", limit)
	}
}

func setupPlanService(t *testing.T) (plandomain.Service, *gorm.DB) {
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
	preparePlanSchema(t, db)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)),
	})
	return svc, db
}

func preparePlanSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	stmts := []string{
		`CREATE TABLE plans (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			type TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'free',
			is_default BOOLEAN NOT NULL DEFAULT 0,
			starting_credit DECIMAL(12,2) NOT NULL DEFAULT 0,
			monthly_credit DECIMAL(12,2) DEFAULT 0,
			features TEXT,
			currently_available BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE tier_rate_limits (
			plan_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			granularity TEXT NOT NULL DEFAULT 'all_time',
			value BIGINT NOT NULL,
			UNIQUE (plan_id, metric, granularity)
		)`,
		`CREATE TABLE profiles (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			account_type TEXT NOT NULL DEFAULT 'individual',
			completed_quickstart BOOLEAN NOT NULL DEFAULT 0,
			tier TEXT NOT NULL DEFAULT 'free',
			active_plan_id TEXT,
			credit_balance DECIMAL(12,2) NOT NULL DEFAULT 0,
			credit_balance_updated_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			logo_url TEXT,
			description TEXT,
			website TEXT,
			contact_email TEXT,
			created_by TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'free',
			active_plan_id TEXT,
			credit_balance DECIMAL(12,2) NOT NULL DEFAULT 0,
			credit_balance_updated_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT,
			profile_id TEXT,
			organization_id TEXT,
			archived_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_ledger (
			id TEXT PRIMARY KEY,
			profile_id TEXT,
			organization_id TEXT,
			delta DECIMAL(12,2) NOT NULL,
			balance DECIMAL(12,2) NOT NULL,
			reason TEXT NOT NULL,
			metadata TEXT,
			recorded_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedProfile(t *testing.T, db *gorm.DB, planID *uuid.UUID, tier, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := db.Exec(
		`INSERT INTO profiles (id, display_name, tier, active_plan_id, credit_balance, credit_balance_updated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "Test User", tier, planID, balance, time.Now().UTC(), time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return id
}

func seedOrganization(t *testing.T, db *gorm.DB, planID *uuid.UUID, tier, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := db.Exec(
		`INSERT INTO organizations (id, name, slug, created_by, tier, active_plan_id, credit_balance, credit_balance_updated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, "Acme", "acme-"+id.String()[:8], uuid.New(), tier, planID, balance, time.Now().UTC(), time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return id
}

func seedProject(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	profileID := uuid.New()
	err := db.Exec(
		`INSERT INTO projects (id, name, slug, profile_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, "Demo", "demo", profileID, time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return id
}

func seedPlan(t *testing.T, db *gorm.DB, name string, planType plandomain.PlanType, isDefault bool, startingCredit string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	err := db.Exec(
		`INSERT INTO plans (id, name, type, tier, is_default, starting_credit, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, planType, "free", isDefault, startingCredit, time.Now().UTC(), time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return id
}

func seedRateLimit(t *testing.T, db *gorm.DB, planID uuid.UUID, metric usagedomain.Metric, granularity usagedomain.Granularity, value int64) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO tier_rate_limits (plan_id, metric, granularity, value) VALUES (?, ?, ?, ?)`,
		planID, metric, granularity, value,
	).Error
	if err != nil {
		t.Fatalf("seed rate limit: %v", err)
	}
}
