// Package domain contains persistence models and contracts for usage
// metering: the append-only audit log and the time-bucketed counters that
// back quota decisions.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one immutable audit-log row. Rows are only ever inserted.
type Record struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProfileID      *uuid.UUID `gorm:"type:uuid;index"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index"`
	ProjectID      *uuid.UUID `gorm:"type:uuid;index"`
	APIKeyID       *uuid.UUID `gorm:"type:uuid"`

	Metric      Metric      `gorm:"type:text;not null;index"`
	Granularity Granularity `gorm:"type:text;not null"`
	Quantity    int64       `gorm:"not null"`
	RecordedAt  time.Time   `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "usage_records" }

// Counter is one bucket row. Exactly one row exists per
// (owner, metric, granularity, period_start); increments happen through an
// engine-evaluated upsert, never read-modify-write.
type Counter struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProfileID      *uuid.UUID `gorm:"type:uuid"`
	OrganizationID *uuid.UUID `gorm:"type:uuid"`
	ProjectID      *uuid.UUID `gorm:"type:uuid"`

	Metric      Metric      `gorm:"type:text;not null"`
	Granularity Granularity `gorm:"type:text;not null"`
	PeriodStart time.Time   `gorm:"not null"`
	Quantity    int64       `gorm:"not null"`
	UpdatedAt   time.Time   `gorm:"not null"`
}

// TableName sets the database table name.
func (Counter) TableName() string { return "usage_counters" }
