// Package domain contains the owner entities usage and quota rows are
// attributed to: profiles, organizations and their memberships.
package domain

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/astralhq/keychain/internal/plan/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType distinguishes standalone users from org members.
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeOrgMember  AccountType = "org_member"
)

// Role is an organization membership role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Profile is one platform user. Authentication itself is external; this row
// carries plan, tier and credit state.
type Profile struct {
	ID                  uuid.UUID   `gorm:"type:uuid;primaryKey"`
	DisplayName         string      `gorm:"type:varchar(100);not null"`
	AccountType         AccountType `gorm:"type:text;not null;default:individual"`
	CompletedQuickstart bool        `gorm:"not null;default:false"`

	Tier         plandomain.Tier `gorm:"type:text;not null;default:free"`
	ActivePlanID *uuid.UUID      `gorm:"type:uuid"`

	CreditBalance          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreditBalanceUpdatedAt time.Time       `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Profile) TableName() string { return "profiles" }

// Organization owns projects and usage on behalf of its members.
type Organization struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"type:varchar(100);not null"`
	Slug         string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	LogoURL      *string   `gorm:"type:text"`
	Description  *string   `gorm:"type:text"`
	Website      *string   `gorm:"type:text"`
	ContactEmail *string   `gorm:"type:text"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`

	Tier         plandomain.Tier `gorm:"type:text;not null;default:free"`
	ActivePlanID *uuid.UUID      `gorm:"type:uuid"`

	CreditBalance          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreditBalanceUpdatedAt time.Time       `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Member links a profile to an organization with a role.
type Member struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_org_members_unique,priority:1"`
	ProfileID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:ux_org_members_unique,priority:2;index"`
	Role           Role       `gorm:"type:text;not null;default:member"`
	InvitedBy      *uuid.UUID `gorm:"type:uuid"`
	JoinedAt       time.Time  `gorm:"not null"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

type CreateOrganizationRequest struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
	CreatedBy   string  `json:"created_by"`
}

type UpdateOrganizationRequest struct {
	Name         *string `json:"name"`
	Slug         *string `json:"slug"`
	LogoURL      *string `json:"logo_url"`
	Description  *string `json:"description"`
	Website      *string `json:"website"`
	ContactEmail *string `json:"contact_email"`
}

type AddMemberRequest struct {
	ProfileID string `json:"profile_id"`
	Role      Role   `json:"role"`
	InvitedBy string `json:"invited_by"`
}

type Service interface {
	CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	UpdateOrganization(ctx context.Context, orgID string, req UpdateOrganizationRequest) (*Organization, error)
	GetOrganization(ctx context.Context, orgID string) (*Organization, error)
	AddMembers(ctx context.Context, orgID string, members []AddMemberRequest) ([]Member, error)
	RemoveMembers(ctx context.Context, orgID string, profileIDs []string) error
	ListMembers(ctx context.Context, orgID string) ([]Member, error)
}

var (
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidProfile        = errors.New("invalid_profile")
	ErrOrganizationNotFound  = errors.New("organization_not_found")
	ErrSlugTaken             = errors.New("slug_taken")
	ErrMemberAlreadyExists   = errors.New("member_already_exists")
	ErrNoMembersProvided     = errors.New("no_members_provided")
	ErrInvalidOrganizationID = errors.New("invalid_organization_id")
)
