// Package domain contains the pricing plan and rate limit models plus the
// lookup contract the quota evaluator depends on.
package domain

import (
	"errors"
	"time"

	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlanType restricts who can pick a plan.
type PlanType string

const (
	PlanTypeIndividual   PlanType = "individual"
	PlanTypeOrganization PlanType = "organization"
)

func (t PlanType) Valid() bool {
	return t == PlanTypeIndividual || t == PlanTypeOrganization
}

// Tier is the coarse classification owners inherit from their plan.
type Tier string

const (
	TierFree   Tier = "free"
	Tier1      Tier = "tier1"
	Tier2      Tier = "tier2"
	Tier3      Tier = "tier3"
	Tier4      Tier = "tier4"
	Tier5      Tier = "tier5"
	TierCustom Tier = "custom"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, Tier1, Tier2, Tier3, Tier4, Tier5, TierCustom:
		return true
	default:
		return false
	}
}

// Features holds the optional plan attributes kept in the jsonb column.
// Anything quota- or billing-relevant lives in dedicated columns instead.
type Features struct {
	MaxProjects  int    `json:"max_projects,omitempty"`
	MaxAPIKeys   int    `json:"max_api_keys,omitempty"`
	SupportLevel string `json:"support_level,omitempty"`
}

func (f Features) Validate() error {
	if f.MaxProjects < 0 || f.MaxAPIKeys < 0 {
		return ErrInvalidFeatures
	}
	return nil
}

// Plan is a named bundle of quota limits and starting credit.
type Plan struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(100);not null"`
	Description *string   `gorm:"type:text"`

	Type      PlanType `gorm:"type:text;not null"`
	Tier      Tier     `gorm:"type:text;not null;default:free"`
	IsDefault bool     `gorm:"not null;default:false"`

	StartingCredit decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	MonthlyCredit  decimal.Decimal `gorm:"type:decimal(12,2);default:0"`

	Features datatypes.JSONType[Features] `gorm:"type:jsonb"`

	CurrentlyAvailable bool      `gorm:"not null;default:true"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`

	RateLimits []RateLimit `gorm:"foreignKey:PlanID"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// DecodeFeatures parses and validates the jsonb features column.
func (p *Plan) DecodeFeatures() (Features, error) {
	f := p.Features.Data()
	if err := f.Validate(); err != nil {
		return Features{}, err
	}
	return f, nil
}

// RateLimit caps one metric at one granularity for a plan. Value 0 means
// unlimited.
type RateLimit struct {
	PlanID      uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:ux_plan_metric_granularity,priority:1"`
	Metric      usagedomain.Metric      `gorm:"type:text;not null;uniqueIndex:ux_plan_metric_granularity,priority:2"`
	Granularity usagedomain.Granularity `gorm:"type:text;not null;default:all_time;uniqueIndex:ux_plan_metric_granularity,priority:3"`
	Value       int64                   `gorm:"not null"`
}

// TableName sets the database table name.
func (RateLimit) TableName() string { return "tier_rate_limits" }

func (r RateLimit) Unlimited() bool { return r.Value == 0 }

var (
	// ErrPlanNotFound indicates neither a valid override nor a default plan
	// exists. Every plan type must have exactly one default provisioned, so
	// this is a misconfiguration, not a normal outcome.
	ErrPlanNotFound = errors.New("plan_not_found")

	ErrInvalidPlanType = errors.New("invalid_plan_type")
	ErrInvalidFeatures = errors.New("invalid_plan_features")

	// ErrUnsupportedScope is returned when a plan operation is asked about
	// a project scope without the fallback enabled.
	ErrUnsupportedScope = errors.New("unsupported_plan_scope")
)
