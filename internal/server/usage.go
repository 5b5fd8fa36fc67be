package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/astralhq/keychain/internal/authorization"
	"github.com/astralhq/keychain/internal/scope"
	usagedomain "github.com/astralhq/keychain/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type recordUsageRequest struct {
	Metric      string `json:"metric"`
	Granularity string `json:"granularity"`
	Quantity    int64  `json:"quantity"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	// Admission check, then record. The two are not atomic: concurrent
	// requests may both pass the check, which is an accepted tradeoff.
	allowed, err := s.usageSvc.CanConsume(c.Request.Context(), usagedomain.CheckRequest{
		Scope:       sc,
		Metric:      usagedomain.Metric(strings.TrimSpace(req.Metric)),
		Granularity: usagedomain.Granularity(strings.TrimSpace(req.Granularity)),
		Quantity:    req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !allowed {
		AbortWithError(c, ErrQuotaExceeded)
		return
	}

	record, err := s.usageSvc.Record(c.Request.Context(), usagedomain.RecordRequest{
		Scope:       sc,
		APIKeyID:    apiKeyIDFromContext(c),
		Metric:      usagedomain.Metric(strings.TrimSpace(req.Metric)),
		Granularity: usagedomain.Granularity(strings.TrimSpace(req.Granularity)),
		Quantity:    req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"usage_record": record})
}

func (s *Server) CanConsume(c *gin.Context) {
	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	quantity := int64(0)
	if raw := strings.TrimSpace(c.Query("quantity")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			AbortWithError(c, newValidationError("quantity", "invalid_quantity", "invalid value"))
			return
		}
		quantity = parsed
	}

	allowed, err := s.usageSvc.CanConsume(c.Request.Context(), usagedomain.CheckRequest{
		Scope:       sc,
		Metric:      usagedomain.Metric(strings.TrimSpace(c.Query("metric"))),
		Granularity: usagedomain.Granularity(strings.TrimSpace(c.Query("granularity"))),
		Quantity:    quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

func (s *Server) ListUsageRecords(c *gin.Context) {
	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	pageSize := 0
	if raw := strings.TrimSpace(c.Query("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, invalidRequestError())
			return
		}
		pageSize = parsed
	}

	resp, err := s.usageSvc.ListRecords(c.Request.Context(), usagedomain.ListRecordsRequest{
		Scope:     sc,
		Metric:    usagedomain.Metric(strings.TrimSpace(c.Query("metric"))),
		PageToken: strings.TrimSpace(c.Query("page_token")),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type resetCounterRequest struct {
	Metric      string `json:"metric"`
	Granularity string `json:"granularity"`
}

// ResetCounter zeroes counter buckets for the caller's scope. Resets for
// the same scope are serialized across instances with a redis lock so two
// admins cannot race each other.
func (s *Server) ResetCounter(c *gin.Context) {
	var req resetCounterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if sc.Kind == scope.KindOrganization {
		if err := s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), sc.ID.String(),
			authorization.ObjectCounter, authorization.ActionCounterReset); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	token, acquired, err := s.ingestLimiter.TryLockReset(ctx, sc.String())
	if err != nil {
		s.log.Warn("counter.reset_lock_failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	if !acquired {
		AbortWithError(c, ErrConflict)
		return
	}
	defer func() {
		if err := s.ingestLimiter.ReleaseReset(ctx, sc.String(), token); err != nil {
			s.log.Warn("counter.reset_unlock_failed", zap.Error(err))
		}
	}()

	if err := s.usageSvc.ResetCounter(ctx, sc,
		usagedomain.Metric(strings.TrimSpace(req.Metric)),
		usagedomain.Granularity(strings.TrimSpace(req.Granularity)),
	); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
