package domain

import (
	"context"
	"errors"

	"github.com/astralhq/keychain/internal/scope"
	"github.com/astralhq/keychain/pkg/db/pagination"
	"github.com/google/uuid"
)

// RecordRequest is one billable event to persist.
type RecordRequest struct {
	Scope       scope.Scope
	APIKeyID    *uuid.UUID
	Metric      Metric
	Granularity Granularity
	Quantity    int64
}

// CheckRequest asks whether Quantity more units may be consumed now.
// Quantity defaults to 1 when zero.
type CheckRequest struct {
	Scope       scope.Scope
	Metric      Metric
	Granularity Granularity
	Quantity    int64
}

type ListRecordsRequest struct {
	Scope     scope.Scope
	Metric    Metric
	PageToken string
	PageSize  int
}

type ListRecordsResponse struct {
	pagination.PageInfo
	Records []Record `json:"usage_records"`
}

type Service interface {
	// Record appends to the audit log and increments the counter bucket in
	// one transaction. Not retried internally; callers decide whether the
	// billable operation is retried.
	Record(ctx context.Context, req RecordRequest) (*Record, error)

	// CanConsume is a read-only admission check. It never mutates state and
	// fails open when no plan or no limit is configured.
	CanConsume(ctx context.Context, req CheckRequest) (bool, error)

	// ResetCounter zeroes every bucket for the scope, metric and
	// granularity. Administrative operation, not transactional with the
	// write path.
	ResetCounter(ctx context.Context, sc scope.Scope, metric Metric, granularity Granularity) error

	// ListRecords pages through the audit log, newest first. Never on the
	// quota hot path.
	ListRecords(ctx context.Context, req ListRecordsRequest) (ListRecordsResponse, error)
}

var (
	ErrInvalidMetric      = errors.New("invalid_metric")
	ErrInvalidGranularity = errors.New("invalid_granularity")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
)
