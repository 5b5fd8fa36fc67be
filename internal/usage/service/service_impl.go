package service

import (
	"context"
	"strings"
	"time"

	"github.com/astralhq/keychain/internal/clock"
	obsmetrics "github.com/astralhq/keychain/internal/observability/metrics"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/scope"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/astralhq/keychain/pkg/db/option"
	"github.com/astralhq/keychain/pkg/db/pagination"
	"github.com/astralhq/keychain/pkg/repository"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	PlanSvc plandomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock      clock.Clock
	plansvc    plandomain.Service
	recordrepo repository.Repository[usagedomain.Record]
	metrics    *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		clock:      p.Clock,
		plansvc:    p.PlanSvc,
		recordrepo: repository.ProvideStore[usagedomain.Record](p.DB),
		metrics:    p.Metrics,
	}
}

// Record appends an audit row and increments the counter bucket. Both
// writes commit or roll back together; a failure between them must never
// leave the audit log and the counters out of sync.
func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.Record, error) {
	if err := validateEvent(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	periodStart := usagedomain.PeriodStart(now, req.Granularity)
	cols := req.Scope.Columns()

	record := &usagedomain.Record{
		ID:             uuid.New(),
		ProfileID:      cols.ProfileID,
		OrganizationID: cols.OrganizationID,
		ProjectID:      cols.ProjectID,
		APIKeyID:       req.APIKeyID,
		Metric:         req.Metric,
		Granularity:    req.Granularity,
		Quantity:       req.Quantity,
		RecordedAt:     now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return s.upsertCounter(ctx, tx, cols, req.Metric, req.Granularity, periodStart, req.Quantity, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordUsage(string(req.Metric))
	s.log.Debug("usage.recorded",
		zap.String("scope", req.Scope.String()),
		zap.String("metric", string(req.Metric)),
		zap.Int64("quantity", req.Quantity),
	)
	return record, nil
}

// CanConsume decides admission without mutating state. Between this check
// and the eventual Record call there is a race window: concurrent callers
// can both be admitted against the same remaining budget. Accepted
// tradeoff; billing reconciles overage after the fact.
func (s *Service) CanConsume(ctx context.Context, req usagedomain.CheckRequest) (bool, error) {
	if !req.Metric.Valid() {
		return false, usagedomain.ErrInvalidMetric
	}
	if !req.Granularity.Valid() {
		return false, usagedomain.ErrInvalidGranularity
	}
	if !req.Scope.Kind.Valid() || req.Scope.ID == uuid.Nil {
		return false, scope.ErrInvalidScope
	}

	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}

	planID, err := s.plansvc.GetPlanID(ctx, req.Scope, true)
	if err != nil {
		return false, err
	}
	// No plan means unlimited usage.
	if planID == nil {
		s.metrics.QuotaCheck(string(req.Metric), true)
		return true, nil
	}

	limit, err := s.plansvc.GetRateLimit(ctx, *planID, req.Metric, req.Granularity)
	if err != nil {
		return false, err
	}
	// Absent limit, or value 0, means unlimited.
	if limit == nil || limit.Unlimited() {
		s.metrics.QuotaCheck(string(req.Metric), true)
		return true, nil
	}

	current, err := s.readLatest(ctx, req.Scope, req.Metric, req.Granularity)
	if err != nil {
		return false, err
	}

	admitted := current+qty <= limit.Value
	s.metrics.QuotaCheck(string(req.Metric), admitted)
	return admitted, nil
}

// ResetCounter zeroes all matching buckets.
func (s *Service) ResetCounter(ctx context.Context, sc scope.Scope, metric usagedomain.Metric, granularity usagedomain.Granularity) error {
	if !metric.Valid() {
		return usagedomain.ErrInvalidMetric
	}
	if !granularity.Valid() {
		return usagedomain.ErrInvalidGranularity
	}
	if !sc.Kind.Valid() || sc.ID == uuid.Nil {
		return scope.ErrInvalidScope
	}

	err := ownerFilter(s.db.WithContext(ctx).Model(&usagedomain.Counter{}), sc).
		Where("metric = ? AND granularity = ?", metric, granularity).
		Updates(map[string]any{
			"quantity":   0,
			"updated_at": s.clock.Now(),
		}).Error
	if err != nil {
		return err
	}

	s.metrics.CounterReset(string(metric))
	s.log.Info("usage.counter_reset",
		zap.String("scope", sc.String()),
		zap.String("metric", string(metric)),
		zap.String("granularity", string(granularity)),
	)
	return nil
}

func (s *Service) ListRecords(ctx context.Context, req usagedomain.ListRecordsRequest) (usagedomain.ListRecordsResponse, error) {
	if !req.Scope.Kind.Valid() || req.Scope.ID == uuid.Nil {
		return usagedomain.ListRecordsResponse{}, scope.ErrInvalidScope
	}

	cols := req.Scope.Columns()
	filter := &usagedomain.Record{
		ProfileID:      cols.ProfileID,
		OrganizationID: cols.OrganizationID,
		ProjectID:      cols.ProjectID,
	}
	if req.Metric != "" {
		if !req.Metric.Valid() {
			return usagedomain.ListRecordsResponse{}, usagedomain.ErrInvalidMetric
		}
		filter.Metric = req.Metric
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.recordrepo.Find(ctx, filter,
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  pageSize,
		}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"recorded_at": true}, Field: "recorded_at", Desc: true}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"id": true}, Field: "id", Desc: true}),
	)
	if err != nil {
		return usagedomain.ListRecordsResponse{}, err
	}
	return buildListResponse(items, pageSize), nil
}

// upsertCounter performs the engine-evaluated increment-or-create. The
// conflict target is the bucket's unique key; concurrent writers both land
// on the same row and neither update is lost.
func (s *Service) upsertCounter(
	ctx context.Context,
	tx *gorm.DB,
	cols scope.OwnerColumns,
	metric usagedomain.Metric,
	granularity usagedomain.Granularity,
	periodStart time.Time,
	qty int64,
	now time.Time,
) error {
	if strings.EqualFold(tx.Dialector.Name(), "sqlite") {
		return s.upsertCounterSQLite(ctx, tx, cols, metric, granularity, periodStart, qty, now)
	}

	counter := &usagedomain.Counter{
		ID:             uuid.New(),
		ProfileID:      cols.ProfileID,
		OrganizationID: cols.OrganizationID,
		ProjectID:      cols.ProjectID,
		Metric:         metric,
		Granularity:    granularity,
		PeriodStart:    periodStart,
		Quantity:       qty,
		UpdatedAt:      now,
	}

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "profile_id"},
			{Name: "organization_id"},
			{Name: "project_id"},
			{Name: "metric"},
			{Name: "granularity"},
			{Name: "period_start"},
		},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "quantity"}, Value: gorm.Expr("usage_counters.quantity + excluded.quantity")},
			{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
		},
	}).Create(counter).Error
}

// upsertCounterSQLite uses an expression conflict target because sqlite
// treats NULLs in a plain unique index as distinct, which would break the
// one-row-per-bucket rule for the two unset owner columns.
func (s *Service) upsertCounterSQLite(
	ctx context.Context,
	tx *gorm.DB,
	cols scope.OwnerColumns,
	metric usagedomain.Metric,
	granularity usagedomain.Granularity,
	periodStart time.Time,
	qty int64,
	now time.Time,
) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO usage_counters (
			id, profile_id, organization_id, project_id,
			metric, granularity, period_start, quantity, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (
			COALESCE(profile_id, ''), COALESCE(organization_id, ''), COALESCE(project_id, ''),
			metric, granularity, period_start
		) DO UPDATE SET
			quantity = quantity + excluded.quantity,
			updated_at = excluded.updated_at`,
		uuid.New(),
		cols.ProfileID,
		cols.OrganizationID,
		cols.ProjectID,
		metric,
		granularity,
		periodStart,
		qty,
		now,
	).Error
}

// readLatest returns the quantity of the most recently updated counter for
// the key, or zero when no bucket exists yet.
func (s *Service) readLatest(ctx context.Context, sc scope.Scope, metric usagedomain.Metric, granularity usagedomain.Granularity) (int64, error) {
	var counter usagedomain.Counter
	err := ownerFilter(s.db.WithContext(ctx), sc).
		Where("metric = ? AND granularity = ?", metric, granularity).
		Order("updated_at DESC").
		First(&counter).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return counter.Quantity, nil
}

func ownerFilter(db *gorm.DB, sc scope.Scope) *gorm.DB {
	switch sc.Kind {
	case scope.KindProfile:
		return db.Where("profile_id = ?", sc.ID)
	case scope.KindOrganization:
		return db.Where("organization_id = ?", sc.ID)
	default:
		return db.Where("project_id = ?", sc.ID)
	}
}

func validateEvent(req usagedomain.RecordRequest) error {
	if !req.Granularity.Valid() {
		return usagedomain.ErrInvalidGranularity
	}
	if !req.Metric.Valid() {
		return usagedomain.ErrInvalidMetric
	}
	if req.Quantity <= 0 {
		return usagedomain.ErrInvalidQuantity
	}
	if !req.Scope.Kind.Valid() || req.Scope.ID == uuid.Nil {
		return scope.ErrInvalidScope
	}
	return nil
}

func buildListResponse(items []*usagedomain.Record, pageSize int) usagedomain.ListRecordsResponse {
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(record *usagedomain.Record) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:         record.ID.String(),
			RecordedAt: record.RecordedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	records := make([]usagedomain.Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, *item)
	}

	return usagedomain.ListRecordsResponse{
		PageInfo: *pageInfo,
		Records:  records,
	}
}
