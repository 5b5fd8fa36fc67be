package server

import (
	"net/http"

	ownerdomain "github.com/astralhq/keychain/internal/owner/domain"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/gin-gonic/gin"
)

type createOrganizationRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// CreateOrganization creates an org with the calling profile as admin.
func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sc, ok := scopeFromContext(c)
	if !ok || sc.Kind != scope.KindProfile {
		AbortWithError(c, ownerdomain.ErrInvalidProfile)
		return
	}

	org, err := s.ownerSvc.CreateOrganization(c.Request.Context(), ownerdomain.CreateOrganizationRequest{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		CreatedBy:   sc.ID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"organization": org})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.ownerSvc.GetOrganization(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	var req ownerdomain.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.ownerSvc.UpdateOrganization(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organization": org})
}

func (s *Server) ListMembers(c *gin.Context) {
	members, err := s.ownerSvc.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

type addMembersRequest struct {
	Members []ownerdomain.AddMemberRequest `json:"members"`
}

func (s *Server) AddMembers(c *gin.Context) {
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	members, err := s.ownerSvc.AddMembers(c.Request.Context(), c.Param("id"), req.Members)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"members": members})
}

type removeMembersRequest struct {
	ProfileIDs []string `json:"profile_ids"`
}

func (s *Server) RemoveMembers(c *gin.Context) {
	var req removeMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.ownerSvc.RemoveMembers(c.Request.Context(), c.Param("id"), req.ProfileIDs); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
