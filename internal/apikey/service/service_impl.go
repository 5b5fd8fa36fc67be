package service

import (
	"context"
	"errors"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/clock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil || projectID == uuid.Nil {
		return nil, apikeydomain.ErrInvalidProject
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{apikeydomain.ScopeUsageWrite, apikeydomain.ScopeUsageRead}
	}

	raw, prefix, hash, err := apikeydomain.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	key := apikeydomain.APIKey{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Status:      apikeydomain.StatusActive,
		Prefix:      prefix,
		Hash:        hash,
		Scopes:      pq.StringArray(scopes),
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&key).Error; err != nil {
		return nil, err
	}

	s.log.Info("apikey.created",
		zap.String("api_key_id", key.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("prefix", prefix),
	)
	return &apikeydomain.SecretResponse{APIKey: key, Secret: raw}, nil
}

func (s *Service) Revoke(ctx context.Context, keyID, revokedBy string) (*apikeydomain.APIKey, error) {
	id, err := uuid.Parse(keyID)
	if err != nil {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var key apikeydomain.APIKey
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apikeydomain.ErrKeyNotFound
		}
		return nil, err
	}
	// Revoking twice is a no-op.
	if !key.Active() {
		return &key, nil
	}

	now := s.clock.Now()
	updates := map[string]any{
		"status":     apikeydomain.StatusRevoked,
		"revoked_at": now,
		"updated_at": now,
	}
	if by, err := uuid.Parse(revokedBy); err == nil && by != uuid.Nil {
		updates["revoked_by"] = by
		key.RevokedBy = &by
	}
	err = s.db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	key.Status = apikeydomain.StatusRevoked
	key.RevokedAt = &now
	key.UpdatedAt = now

	s.log.Info("apikey.revoked", zap.String("api_key_id", keyID))
	return &key, nil
}

func (s *Service) ListActive(ctx context.Context, projectID string) ([]apikeydomain.APIKey, error) {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return nil, apikeydomain.ErrInvalidProject
	}

	var keys []apikeydomain.APIKey
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", id, apikeydomain.StatusActive).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Service) HasActiveKeys(ctx context.Context, projectID string) (bool, error) {
	id, err := uuid.Parse(projectID)
	if err != nil {
		return false, apikeydomain.ErrInvalidProject
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("project_id = ? AND status = ?", id, apikeydomain.StatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
