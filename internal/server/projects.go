package server

import (
	"net/http"
	"strings"

	"github.com/astralhq/keychain/internal/authorization"
	projectdomain "github.com/astralhq/keychain/internal/project/domain"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListProjects(c *gin.Context) {
	filter, err := ownerFilterFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(c.Query("include_api_keys")), "true") {
		projects, err := s.projectSvc.ListWithAPIKeys(c.Request.Context(), filter)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
		return
	}

	projects, err := s.projectSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

type createProjectRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

func (s *Server) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sc, ok := scopeFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	create := projectdomain.CreateRequest{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	}
	switch sc.Kind {
	case scope.KindProfile:
		create.ProfileID = sc.ID.String()
	case scope.KindOrganization:
		if err := s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), sc.ID.String(),
			authorization.ObjectProject, authorization.ActionProjectCreate); err != nil {
			AbortWithError(c, err)
			return
		}
		create.OrganizationID = sc.ID.String()
	default:
		AbortWithError(c, projectdomain.ErrInvalidOwner)
		return
	}

	project, err := s.projectSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (s *Server) UpdateProject(c *gin.Context) {
	var req projectdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authorizeProjectMutation(c, authorization.ActionProjectUpdate); err != nil {
		AbortWithError(c, err)
		return
	}

	project, err := s.projectSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (s *Server) ArchiveProject(c *gin.Context) {
	if err := s.authorizeProjectMutation(c, authorization.ActionProjectArchive); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.projectSvc.Archive(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func (s *Server) DeleteProject(c *gin.Context) {
	if err := s.authorizeProjectMutation(c, authorization.ActionProjectDelete); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.projectSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// authorizeProjectMutation gates project writes for organization callers.
// Profile-owned projects have a single owner, so no role check applies.
func (s *Server) authorizeProjectMutation(c *gin.Context, action string) error {
	sc, ok := scopeFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if sc.Kind != scope.KindOrganization {
		return nil
	}
	return s.authzSvc.Authorize(c.Request.Context(), actorFromContext(c), sc.ID.String(),
		authorization.ObjectProject, action)
}

func ownerFilterFromContext(c *gin.Context) (projectdomain.OwnerFilter, error) {
	sc, ok := scopeFromContext(c)
	if !ok {
		return projectdomain.OwnerFilter{}, ErrUnauthorized
	}
	switch sc.Kind {
	case scope.KindProfile:
		return projectdomain.OwnerFilter{ProfileID: sc.ID.String()}, nil
	case scope.KindOrganization:
		return projectdomain.OwnerFilter{OrganizationID: sc.ID.String()}, nil
	default:
		return projectdomain.OwnerFilter{}, projectdomain.ErrInvalidOwner
	}
}
