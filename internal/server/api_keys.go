package server

import (
	"net/http"
	"strings"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/authorization"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/gin-gonic/gin"
)

// CreateAPIKey mints a new key for a project. The raw secret appears in
// this response only; afterwards just the hash exists.
func (s *Server) CreateAPIKey(c *gin.Context) {
	var req apikeydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authorizeAPIKeyMutation(c, authorization.ActionAPIKeyCreate); err != nil {
		AbortWithError(c, err)
		return
	}

	secret, err := s.apiKeySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, secret)
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	projectID := strings.TrimSpace(c.Query("project_id"))
	if projectID == "" {
		AbortWithError(c, apikeydomain.ErrInvalidProject)
		return
	}

	keys, err := s.apiKeySvc.ListActive(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	if err := s.authorizeAPIKeyMutation(c, authorization.ActionAPIKeyRevoke); err != nil {
		AbortWithError(c, err)
		return
	}

	sc, _ := scopeFromContext(c)
	revokedBy := ""
	if sc.Kind == scope.KindProfile {
		revokedBy = sc.ID.String()
	}

	key, err := s.apiKeySvc.Revoke(c.Request.Context(), c.Param("key_id"), revokedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_key": key})
}

func (s *Server) authorizeAPIKeyMutation(c *gin.Context, action string) error {
	sc, ok := scopeFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if sc.Kind != scope.KindOrganization {
		return nil
	}
	return s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), sc.ID.String(),
		authorization.ObjectAPIKey, action)
}
