// Package scope canonicalizes the owner an API call is attributed to.
// Usage, counters and plan lookups are all keyed by a Scope: exactly one of
// profile, organization or project.
package scope

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies which owner entity a scope refers to.
type Kind string

const (
	KindProfile      Kind = "profile"
	KindOrganization Kind = "organization"
	KindProject      Kind = "project"
)

var (
	// ErrInvalidScope is returned when zero or more than one owner
	// identifier is supplied. Mutual exclusivity is a hard invariant, the
	// storage layer enforces the same rule with a CHECK constraint.
	ErrInvalidScope = errors.New("invalid_scope")
)

// Scope is the canonical owner reference.
type Scope struct {
	Kind Kind
	ID   uuid.UUID
}

// Resolve builds a Scope from raw identity inputs. Exactly one identifier
// must be non-empty.
func Resolve(profileID, organizationID, projectID string) (Scope, error) {
	profileID = strings.TrimSpace(profileID)
	organizationID = strings.TrimSpace(organizationID)
	projectID = strings.TrimSpace(projectID)

	supplied := 0
	for _, v := range []string{profileID, organizationID, projectID} {
		if v != "" {
			supplied++
		}
	}
	if supplied != 1 {
		return Scope{}, ErrInvalidScope
	}

	switch {
	case profileID != "":
		return parse(KindProfile, profileID)
	case organizationID != "":
		return parse(KindOrganization, organizationID)
	default:
		return parse(KindProject, projectID)
	}
}

func parse(kind Kind, raw string) (Scope, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return Scope{}, ErrInvalidScope
	}
	return Scope{Kind: kind, ID: id}, nil
}

// OwnerColumns is the nullable owner triple persisted on usage rows.
type OwnerColumns struct {
	ProfileID      *uuid.UUID
	OrganizationID *uuid.UUID
	ProjectID      *uuid.UUID
}

// Columns expands the scope into the three owner foreign keys.
func (s Scope) Columns() OwnerColumns {
	id := s.ID
	switch s.Kind {
	case KindProfile:
		return OwnerColumns{ProfileID: &id}
	case KindOrganization:
		return OwnerColumns{OrganizationID: &id}
	case KindProject:
		return OwnerColumns{ProjectID: &id}
	default:
		return OwnerColumns{}
	}
}

// FromColumns reconstructs a Scope from stored owner columns, enforcing the
// one-owner invariant.
func FromColumns(cols OwnerColumns) (Scope, error) {
	supplied := 0
	var out Scope
	if cols.ProfileID != nil && *cols.ProfileID != uuid.Nil {
		supplied++
		out = Scope{Kind: KindProfile, ID: *cols.ProfileID}
	}
	if cols.OrganizationID != nil && *cols.OrganizationID != uuid.Nil {
		supplied++
		out = Scope{Kind: KindOrganization, ID: *cols.OrganizationID}
	}
	if cols.ProjectID != nil && *cols.ProjectID != uuid.Nil {
		supplied++
		out = Scope{Kind: KindProject, ID: *cols.ProjectID}
	}
	if supplied != 1 {
		return Scope{}, ErrInvalidScope
	}
	return out, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindProfile, KindOrganization, KindProject:
		return true
	default:
		return false
	}
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}
