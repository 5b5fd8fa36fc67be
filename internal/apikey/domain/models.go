// Package domain contains API key models. Keys are scoped to a project;
// only the sha256 hash and a display prefix are persisted.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Status is the lifecycle state of a key. Revoked keys are kept, not
// deleted.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

type APIKey struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;index"`

	Status Status         `gorm:"type:text;not null;default:active"`
	Prefix string         `gorm:"type:varchar(15);not null"`
	Hash   string         `gorm:"type:text;not null"`
	Scopes pq.StringArray `gorm:"type:text[]"`

	Description *string    `gorm:"type:text"`
	ExpiresAt   *time.Time `gorm:""`
	RevokedAt   *time.Time `gorm:""`
	RevokedBy   *uuid.UUID `gorm:"type:uuid"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

func (k APIKey) Active() bool {
	return k.Status == StatusActive && k.RevokedAt == nil
}

const (
	ScopeUsageWrite = "usage:write"
	ScopeUsageRead  = "usage:read"
)

type CreateRequest struct {
	ProjectID   string   `json:"project_id"`
	Description *string  `json:"description"`
	Scopes      []string `json:"scopes"`
}

// SecretResponse carries the raw key material; returned exactly once at
// creation and never recoverable afterwards.
type SecretResponse struct {
	APIKey APIKey `json:"api_key"`
	Secret string `json:"secret"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID, revokedBy string) (*APIKey, error)
	ListActive(ctx context.Context, projectID string) ([]APIKey, error)
	HasActiveKeys(ctx context.Context, projectID string) (bool, error)
}

var (
	ErrInvalidProject = errors.New("invalid_project")
	ErrInvalidKeyID   = errors.New("invalid_key_id")
	ErrKeyNotFound    = errors.New("api_key_not_found")
)
