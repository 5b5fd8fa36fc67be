package service

import (
	"context"
	"strings"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/clock"
	projectdomain "github.com/astralhq/keychain/internal/project/domain"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	KeySvc apikeydomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	keysvc apikeydomain.Service
}

func NewService(p ServiceParam) projectdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("project.service"),
		clock:  p.Clock,
		keysvc: p.KeySvc,
	}
}

func (s *Service) Create(ctx context.Context, req projectdomain.CreateRequest) (*projectdomain.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, projectdomain.ErrInvalidName
	}

	profileID, orgID, err := parseOwner(req.ProfileID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	slugValue := strings.TrimSpace(req.Slug)
	if slugValue == "" {
		slugValue = name
	}

	now := s.clock.Now()
	project := projectdomain.Project{
		ID:             uuid.New(),
		Name:           name,
		Slug:           slug.Make(slugValue),
		Description:    req.Description,
		ProfileID:      profileID,
		OrganizationID: orgID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}

	s.log.Info("project.created",
		zap.String("project_id", project.ID.String()),
		zap.String("slug", project.Slug),
	)
	return &project, nil
}

func (s *Service) Update(ctx context.Context, projectID string, req projectdomain.UpdateRequest) (*projectdomain.Project, error) {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return nil, projectdomain.ErrProjectNotFound
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, projectdomain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.Slug != nil {
		updates["slug"] = slug.Make(*req.Slug)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if len(updates) == 0 {
		return nil, projectdomain.ErrNothingToUpdate
	}
	updates["updated_at"] = s.clock.Now()

	result := s.db.WithContext(ctx).
		Model(&projectdomain.Project{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, projectdomain.ErrProjectNotFound
	}

	var project projectdomain.Project
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// Archive soft-deletes the project. Usage rows referencing it stay intact.
func (s *Service) Archive(ctx context.Context, projectID string) error {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return projectdomain.ErrProjectNotFound
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Model(&projectdomain.Project{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(map[string]any{
			"archived_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return projectdomain.ErrProjectNotFound
	}

	s.log.Info("project.archived", zap.String("project_id", projectID))
	return nil
}

// Delete removes the project row and its API keys. Archive is the normal
// path; hard deletion exists for cleanup of never-used projects.
func (s *Service) Delete(ctx context.Context, projectID string) error {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return projectdomain.ErrProjectNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&apikeydomain.APIKey{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&projectdomain.Project{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return projectdomain.ErrProjectNotFound
		}
		return nil
	})
}

func (s *Service) List(ctx context.Context, owner projectdomain.OwnerFilter) ([]projectdomain.Project, error) {
	query, err := s.ownerQuery(ctx, owner)
	if err != nil {
		return nil, err
	}

	var projects []projectdomain.Project
	err = query.Where("archived_at IS NULL").
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Service) ListWithAPIKeys(ctx context.Context, owner projectdomain.OwnerFilter) ([]projectdomain.WithAPIKeys, error) {
	projects, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]projectdomain.WithAPIKeys, 0, len(projects))
	for _, project := range projects {
		keys, err := s.keysvc.ListActive(ctx, project.ID.String())
		if err != nil {
			return nil, err
		}
		out = append(out, projectdomain.WithAPIKeys{Project: project, APIKeys: keys})
	}
	return out, nil
}

func (s *Service) HasProjects(ctx context.Context, owner projectdomain.OwnerFilter) (bool, error) {
	query, err := s.ownerQuery(ctx, owner)
	if err != nil {
		return false, err
	}

	var count int64
	if err := query.Where("archived_at IS NULL").Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) ownerQuery(ctx context.Context, owner projectdomain.OwnerFilter) (*gorm.DB, error) {
	profileID, orgID, err := parseOwner(owner.ProfileID, owner.OrganizationID)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&projectdomain.Project{})
	if profileID != nil {
		return query.Where("profile_id = ?", *profileID), nil
	}
	return query.Where("organization_id = ?", *orgID), nil
}

// parseOwner enforces the one-owner rule shared with usage attribution.
func parseOwner(profileID, organizationID string) (*uuid.UUID, *uuid.UUID, error) {
	profileID = strings.TrimSpace(profileID)
	organizationID = strings.TrimSpace(organizationID)
	if (profileID == "") == (organizationID == "") {
		return nil, nil, projectdomain.ErrInvalidOwner
	}

	if profileID != "" {
		id, err := uuid.Parse(profileID)
		if err != nil || id == uuid.Nil {
			return nil, nil, projectdomain.ErrInvalidOwner
		}
		return &id, nil, nil
	}

	id, err := uuid.Parse(organizationID)
	if err != nil || id == uuid.Nil {
		return nil, nil, projectdomain.ErrInvalidOwner
	}
	return nil, &id, nil
}
