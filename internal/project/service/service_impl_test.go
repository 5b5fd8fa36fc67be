package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	apikeyservice "github.com/astralhq/keychain/internal/apikey/service"
	"github.com/astralhq/keychain/internal/clock"
	projectdomain "github.com/astralhq/keychain/internal/project/domain"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestCreateProjectSlugifiesName(t *testing.T) {
	svc, _, _, _ := setupProjectService(t)
	profileID := uuid.New()

	project, err := svc.Create(context.Background(), projectdomain.CreateRequest{
		Name:      "My First Project",
		ProfileID: profileID.String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if project.Slug != "my-first-project" {
		t.Fatalf("expected slug my-first-project, got %q", project.Slug)
	}
	if project.ProfileID == nil || *project.ProfileID != profileID {
		t.Fatal("expected profile owner to be set")
	}
	if project.OrganizationID != nil {
		t.Fatal("organization owner must stay empty for profile projects")
	}
}

func TestCreateProjectRequiresExactlyOneOwner(t *testing.T) {
	svc, _, _, _ := setupProjectService(t)

	cases := []projectdomain.CreateRequest{
		{Name: "no owner"},
		{Name: "both owners", ProfileID: uuid.New().String(), OrganizationID: uuid.New().String()},
		{Name: "bad owner", ProfileID: "not-a-uuid"},
	}
	for _, req := range cases {
		if _, err := svc.Create(context.Background(), req); err != projectdomain.ErrInvalidOwner {
			t.Fatalf("%s: expected ErrInvalidOwner, got %v", req.Name, err)
		}
	}
}

func TestUpdateProjectIsPartial(t *testing.T) {
	svc, _, _, _ := setupProjectService(t)

	project, err := svc.Create(context.Background(), projectdomain.CreateRequest{
		Name:      "Original",
		ProfileID: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Update(context.Background(), project.ID.String(), projectdomain.UpdateRequest{}); err != projectdomain.ErrNothingToUpdate {
		t.Fatalf("expected ErrNothingToUpdate, got %v", err)
	}

	name := "Renamed"
	updated, err := svc.Update(context.Background(), project.ID.String(), projectdomain.UpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected renamed project, got %q", updated.Name)
	}
	if updated.Slug != project.Slug {
		t.Fatal("slug must not change unless requested")
	}
}

func TestArchiveExcludesProjectFromUpdatesAndListing(t *testing.T) {
	svc, _, _, _ := setupProjectService(t)
	profileID := uuid.New()

	project, err := svc.Create(context.Background(), projectdomain.CreateRequest{
		Name:      "Short Lived",
		ProfileID: profileID.String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Archive(context.Background(), project.ID.String()); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := svc.Archive(context.Background(), project.ID.String()); err != projectdomain.ErrProjectNotFound {
		t.Fatalf("expected second archive to fail, got %v", err)
	}

	name := "Too Late"
	if _, err := svc.Update(context.Background(), project.ID.String(), projectdomain.UpdateRequest{Name: &name}); err != projectdomain.ErrProjectNotFound {
		t.Fatalf("expected archived project to reject updates, got %v", err)
	}

	projects, err := svc.List(context.Background(), projectdomain.OwnerFilter{ProfileID: profileID.String()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected archived project hidden from listing, got %d", len(projects))
	}
}

func TestDeleteRemovesProjectAndKeys(t *testing.T) {
	svc, keySvc, db, _ := setupProjectService(t)
	profileID := uuid.New()

	project, err := svc.Create(context.Background(), projectdomain.CreateRequest{
		Name:      "Doomed",
		ProfileID: profileID.String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := keySvc.Create(context.Background(), apikeydomain.CreateRequest{ProjectID: project.ID.String()}); err != nil {
		t.Fatalf("create key: %v", err)
	}

	if err := svc.Delete(context.Background(), project.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var projects, keys int64
	if err := db.Model(&projectdomain.Project{}).Count(&projects).Error; err != nil {
		t.Fatalf("count projects: %v", err)
	}
	if err := db.Model(&apikeydomain.APIKey{}).Count(&keys).Error; err != nil {
		t.Fatalf("count keys: %v", err)
	}
	if projects != 0 || keys != 0 {
		t.Fatalf("expected project and keys gone, got %d projects and %d keys", projects, keys)
	}
}

func TestListWithAPIKeysAttachesActiveKeys(t *testing.T) {
	svc, keySvc, _, _ := setupProjectService(t)
	orgID := uuid.New()

	project, err := svc.Create(context.Background(), projectdomain.CreateRequest{
		Name:           "Org Project",
		OrganizationID: orgID.String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := keySvc.Create(context.Background(), apikeydomain.CreateRequest{ProjectID: project.ID.String()}); err != nil {
		t.Fatalf("create key: %v", err)
	}

	listed, err := svc.ListWithAPIKeys(context.Background(), projectdomain.OwnerFilter{OrganizationID: orgID.String()})
	if err != nil {
		t.Fatalf("list with keys: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 project, got %d", len(listed))
	}
	if len(listed[0].APIKeys) != 1 {
		t.Fatalf("expected 1 key attached, got %d", len(listed[0].APIKeys))
	}
}

func setupProjectService(t *testing.T) (projectdomain.Service, apikeydomain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.Exec(`CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT,
		profile_id TEXT,
		organization_id TEXT,
		archived_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create projects: %v", err)
	}
	if err := db.Exec(`CREATE TABLE api_keys (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		prefix TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		scopes TEXT,
		description TEXT,
		expires_at DATETIME,
		revoked_at DATETIME,
		revoked_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create api_keys: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC))
	keySvc := apikeyservice.NewService(apikeyservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
	})
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		KeySvc: keySvc,
	})
	return svc, keySvc, db, clk
}
