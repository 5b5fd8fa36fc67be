package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"
	"time"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	HeaderRequestID    = "X-Request-ID"
	HeaderProfile      = "X-Profile-ID"
	HeaderOrganization = "X-Organization-ID"
	HeaderProject      = "X-Project-ID"
)

const (
	contextScopeKey    = "auth_scope"
	contextActorKey    = "auth_actor"
	contextAPIKeyIDKey = "api_key_id"
)

// RequestIDMiddleware assigns a snowflake id to every request so log lines
// across services can be correlated.
func RequestIDMiddleware(genID *snowflake.Node) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = genID.Generate().String()
		}
		c.Set(HeaderRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.request")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request.done",
			zap.String("request_id", c.GetString(HeaderRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// IdentityRequired resolves the owner scope from the identity headers.
// Exactly one of the three headers must be present.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, err := scope.Resolve(
			c.GetHeader(HeaderProfile),
			c.GetHeader(HeaderOrganization),
			c.GetHeader(HeaderProject),
		)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		actor := "system"
		if sc.Kind == scope.KindProfile {
			actor = "profile:" + sc.ID.String()
		}

		c.Set(contextScopeKey, sc)
		c.Set(contextActorKey, actor)
		c.Next()
	}
}

// APIKeyRequired authenticates with a bearer API key. The owner scope is
// derived solely from the key's project; identity headers are rejected.
func (s *Server) APIKeyRequired(requiredScope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if requestHasIdentity(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := apikeydomain.HashSecret(parts[1])
		now := time.Now().UTC()

		var record struct {
			ID        uuid.UUID      `gorm:"column:id"`
			ProjectID uuid.UUID      `gorm:"column:project_id"`
			Hash      string         `gorm:"column:hash"`
			Scopes    pq.StringArray `gorm:"column:scopes"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT id, project_id, hash, scopes
			 FROM api_keys
			 WHERE hash = ?
			   AND status = 'active'
			   AND revoked_at IS NULL
			   AND (expires_at IS NULL OR expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.ID == uuid.Nil || subtle.ConstantTimeCompare([]byte(record.Hash), []byte(hash)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !hasScope(record.Scopes, requiredScope) {
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Set(contextScopeKey, scope.Scope{Kind: scope.KindProject, ID: record.ProjectID})
		c.Set(contextActorKey, "api_key:"+record.ID.String())
		c.Set(contextAPIKeyIDKey, record.ID)
		c.Next()
	}
}

// IngestRateLimit caps ingest throughput per owner at the edge. A limiter
// failure degrades to 503 rather than admitting unmetered traffic.
func (s *Server) IngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ingestLimiter == nil || !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}

		sc, ok := scopeFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.ingestLimiter.AllowOwner(c.Request.Context(), sc.String())
		if err != nil {
			s.log.Warn("ingest.rate_limit_check_failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

// requireOrgAction enforces role-based access for organization resources.
// The organization id comes from the route, the actor from the identity
// middleware.
func (s *Server) requireOrgAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.Param("id"))
		if _, err := uuid.Parse(orgID); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		if err := s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), orgID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func requestHasIdentity(c *gin.Context) bool {
	for _, header := range []string{HeaderProfile, HeaderOrganization, HeaderProject} {
		if strings.TrimSpace(c.GetHeader(header)) != "" {
			return true
		}
	}
	return false
}

func hasScope(scopes []string, required string) bool {
	for _, candidate := range scopes {
		if strings.EqualFold(strings.TrimSpace(candidate), required) {
			return true
		}
	}
	return false
}

func scopeFromContext(c *gin.Context) (scope.Scope, bool) {
	value, ok := c.Get(contextScopeKey)
	if !ok {
		return scope.Scope{}, false
	}
	sc, ok := value.(scope.Scope)
	return sc, ok
}

func actorFromContext(c *gin.Context) string {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return ""
	}
	actor, _ := value.(string)
	return actor
}

func apiKeyIDFromContext(c *gin.Context) *uuid.UUID {
	value, ok := c.Get(contextAPIKeyIDKey)
	if !ok {
		return nil
	}
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return nil
	}
	return &id
}
