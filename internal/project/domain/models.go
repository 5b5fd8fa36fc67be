// Package domain contains the project entity and its service contract.
// Projects are owned either by a profile or by an organization, never both;
// the same one-owner rule that governs usage rows.
package domain

import (
	"context"
	"errors"
	"time"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/google/uuid"
)

type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"type:varchar(100);not null"`
	Slug        string    `gorm:"type:varchar(100);not null"`
	Description *string   `gorm:"type:text"`

	ProfileID      *uuid.UUID `gorm:"type:uuid;index"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index"`

	ArchivedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

func (p Project) Archived() bool { return p.ArchivedAt != nil }

// WithAPIKeys pairs a project with its active API keys for listing.
type WithAPIKeys struct {
	Project
	APIKeys []apikeydomain.APIKey `json:"api_keys"`
}

type CreateRequest struct {
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	Description    *string `json:"description"`
	ProfileID      string  `json:"profile_id"`
	OrganizationID string  `json:"organization_id"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

// OwnerFilter selects projects by owner; exactly one field must be set.
type OwnerFilter struct {
	ProfileID      string
	OrganizationID string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Project, error)
	Update(ctx context.Context, projectID string, req UpdateRequest) (*Project, error)
	Archive(ctx context.Context, projectID string) error
	Delete(ctx context.Context, projectID string) error
	List(ctx context.Context, owner OwnerFilter) ([]Project, error)
	ListWithAPIKeys(ctx context.Context, owner OwnerFilter) ([]WithAPIKeys, error)
	HasProjects(ctx context.Context, owner OwnerFilter) (bool, error)
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidOwner    = errors.New("invalid_owner")
	ErrProjectNotFound = errors.New("project_not_found")
	ErrNothingToUpdate = errors.New("nothing_to_update")
)
