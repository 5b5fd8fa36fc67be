package server

import (
	"net/http"
	"strings"

	"github.com/astralhq/keychain/internal/authorization"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.FetchAllPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) GetDefaultPlan(c *gin.Context) {
	planType := plandomain.PlanType(strings.TrimSpace(c.Query("type")))
	if !planType.Valid() {
		AbortWithError(c, plandomain.ErrInvalidPlanType)
		return
	}

	plan, err := s.planSvc.FetchOwnerPlan(c.Request.Context(), "", planType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}

func (s *Server) GetOwnerTier(c *gin.Context) {
	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	tier, err := s.planSvc.GetOwnerTier(c.Request.Context(), sc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tier": tier})
}

type applyPlanRequest struct {
	PlanID string `json:"plan_id"`
}

// ApplyPlan assigns a plan to the caller's owner scope. An empty plan id
// applies the default plan for the owner's type.
func (s *Server) ApplyPlan(c *gin.Context) {
	var req applyPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var planType plandomain.PlanType
	switch sc.Kind {
	case scope.KindProfile:
		planType = plandomain.PlanTypeIndividual
	case scope.KindOrganization:
		planType = plandomain.PlanTypeOrganization
	default:
		AbortWithError(c, plandomain.ErrUnsupportedScope)
		return
	}

	if sc.Kind == scope.KindOrganization {
		if err := s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), sc.ID.String(),
			authorization.ObjectPlan, authorization.ActionPlanApply); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	plan, err := s.planSvc.FetchOwnerPlan(c.Request.Context(), strings.TrimSpace(req.PlanID), planType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.planSvc.ApplyPlanToOwner(c.Request.Context(), sc, plan); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
