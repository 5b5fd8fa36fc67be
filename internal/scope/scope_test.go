package scope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestResolveExactlyOneOwner(t *testing.T) {
	profileID := uuid.NewString()
	orgID := uuid.NewString()
	projectID := uuid.NewString()

	tests := []struct {
		name      string
		profile   string
		org       string
		project   string
		wantKind  Kind
		wantError bool
	}{
		{name: "profile", profile: profileID, wantKind: KindProfile},
		{name: "organization", org: orgID, wantKind: KindOrganization},
		{name: "project", project: projectID, wantKind: KindProject},
		{name: "none", wantError: true},
		{name: "profile and org", profile: profileID, org: orgID, wantError: true},
		{name: "all three", profile: profileID, org: orgID, project: projectID, wantError: true},
		{name: "not a uuid", profile: "not-a-uuid", wantError: true},
		{name: "nil uuid", profile: uuid.Nil.String(), wantError: true},
		{name: "whitespace only", profile: "   ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.profile, tt.org, tt.project)
			if tt.wantError {
				require.ErrorIs(t, err, ErrInvalidScope)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantKind, got.Kind)
			require.NotEqual(t, uuid.Nil, got.ID)
		})
	}
}

func TestColumnsRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindProfile, KindOrganization, KindProject} {
		s := Scope{Kind: kind, ID: uuid.New()}
		got, err := FromColumns(s.Columns())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestFromColumnsRejectsAmbiguousOwners(t *testing.T) {
	id := uuid.New()

	_, err := FromColumns(OwnerColumns{})
	require.ErrorIs(t, err, ErrInvalidScope)

	_, err = FromColumns(OwnerColumns{ProfileID: &id, OrganizationID: &id})
	require.ErrorIs(t, err, ErrInvalidScope)
}
