package service

import (
	"context"
	"errors"
	"strings"

	"github.com/astralhq/keychain/internal/clock"
	ownerdomain "github.com/astralhq/keychain/internal/owner/domain"
	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/astralhq/keychain/internal/scope"
	"github.com/astralhq/keychain/pkg/db"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	PlanSvc plandomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	plansvc plandomain.Service
}

func NewService(p ServiceParam) ownerdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("owner.service"),
		clock:   p.Clock,
		plansvc: p.PlanSvc,
	}
}

// CreateOrganization provisions the org, its creator's admin membership and
// the default organization plan in one transaction.
func (s *Service) CreateOrganization(ctx context.Context, req ownerdomain.CreateOrganizationRequest) (*ownerdomain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ownerdomain.ErrInvalidName
	}
	createdBy, err := uuid.Parse(req.CreatedBy)
	if err != nil || createdBy == uuid.Nil {
		return nil, ownerdomain.ErrInvalidProfile
	}

	slugValue := strings.TrimSpace(req.Slug)
	if slugValue == "" {
		slugValue = name
	}

	now := s.clock.Now()
	org := ownerdomain.Organization{
		ID:                     uuid.New(),
		Name:                   name,
		Slug:                   slug.Make(slugValue),
		Description:            req.Description,
		CreatedBy:              createdBy,
		Tier:                   plandomain.TierFree,
		CreditBalanceUpdatedAt: now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ownerdomain.ErrSlugTaken
			}
			return err
		}
		return tx.Create(&ownerdomain.Member{
			ID:             uuid.New(),
			OrganizationID: org.ID,
			ProfileID:      createdBy,
			Role:           ownerdomain.RoleAdmin,
			JoinedAt:       now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	// Best effort; the org works without a plan, it is just unlimited until
	// one gets applied.
	if plan, err := s.plansvc.FetchOwnerPlan(ctx, "", plandomain.PlanTypeOrganization); err == nil {
		sc := scope.Scope{Kind: scope.KindOrganization, ID: org.ID}
		if err := s.plansvc.ApplyPlanToOwner(ctx, sc, plan); err != nil {
			s.log.Warn("owner.default_plan_failed",
				zap.String("organization_id", org.ID.String()),
				zap.Error(err),
			)
		} else {
			org.Tier = plan.Tier
			planID := plan.ID
			org.ActivePlanID = &planID
			org.CreditBalance = plan.StartingCredit
		}
	}

	s.log.Info("owner.organization_created",
		zap.String("organization_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	return &org, nil
}

func (s *Service) UpdateOrganization(ctx context.Context, orgID string, req ownerdomain.UpdateOrganizationRequest) (*ownerdomain.Organization, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, ownerdomain.ErrInvalidOrganizationID
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ownerdomain.ErrInvalidName
		}
		updates["name"] = name
	}
	if req.Slug != nil {
		updates["slug"] = slug.Make(*req.Slug)
	}
	if req.LogoURL != nil {
		updates["logo_url"] = *req.LogoURL
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Website != nil {
		updates["website"] = *req.Website
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if len(updates) > 0 {
		updates["updated_at"] = s.clock.Now()

		result := s.db.WithContext(ctx).
			Model(&ownerdomain.Organization{}).
			Where("id = ?", id).
			Updates(updates)
		if result.Error != nil {
			if db.IsDuplicateKeyErr(result.Error) {
				return nil, ownerdomain.ErrSlugTaken
			}
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ownerdomain.ErrOrganizationNotFound
		}
	}

	return s.GetOrganization(ctx, orgID)
}

func (s *Service) GetOrganization(ctx context.Context, orgID string) (*ownerdomain.Organization, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, ownerdomain.ErrInvalidOrganizationID
	}

	var org ownerdomain.Organization
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ownerdomain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *Service) AddMembers(ctx context.Context, orgID string, members []ownerdomain.AddMemberRequest) ([]ownerdomain.Member, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, ownerdomain.ErrInvalidOrganizationID
	}
	if len(members) == 0 {
		return nil, ownerdomain.ErrNoMembersProvided
	}

	now := s.clock.Now()
	rows := make([]ownerdomain.Member, 0, len(members))
	for _, m := range members {
		profileID, err := uuid.Parse(m.ProfileID)
		if err != nil || profileID == uuid.Nil {
			return nil, ownerdomain.ErrInvalidProfile
		}
		role := m.Role
		if role != ownerdomain.RoleAdmin {
			role = ownerdomain.RoleMember
		}
		row := ownerdomain.Member{
			ID:             uuid.New(),
			OrganizationID: id,
			ProfileID:      profileID,
			Role:           role,
			JoinedAt:       now,
		}
		if by, err := uuid.Parse(m.InvitedBy); err == nil && by != uuid.Nil {
			row.InvitedBy = &by
		}
		rows = append(rows, row)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				if db.IsDuplicateKeyErr(err) {
					return ownerdomain.ErrMemberAlreadyExists
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("owner.members_added",
		zap.String("organization_id", orgID),
		zap.Int("count", len(rows)),
	)
	return rows, nil
}

func (s *Service) RemoveMembers(ctx context.Context, orgID string, profileIDs []string) error {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return ownerdomain.ErrInvalidOrganizationID
	}
	if len(profileIDs) == 0 {
		return ownerdomain.ErrNoMembersProvided
	}

	ids := make([]uuid.UUID, 0, len(profileIDs))
	for _, raw := range profileIDs {
		profileID, err := uuid.Parse(raw)
		if err != nil || profileID == uuid.Nil {
			return ownerdomain.ErrInvalidProfile
		}
		ids = append(ids, profileID)
	}

	return s.db.WithContext(ctx).
		Where("organization_id = ? AND profile_id IN ?", id, ids).
		Delete(&ownerdomain.Member{}).Error
}

func (s *Service) ListMembers(ctx context.Context, orgID string) ([]ownerdomain.Member, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, ownerdomain.ErrInvalidOrganizationID
	}

	var members []ownerdomain.Member
	err = s.db.WithContext(ctx).
		Where("organization_id = ?", id).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
