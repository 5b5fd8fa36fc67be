package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	apikeydomain "github.com/astralhq/keychain/internal/apikey/domain"
	"github.com/astralhq/keychain/internal/clock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestCreateReturnsSecretExactlyOnce(t *testing.T) {
	svc, db, _ := setupAPIKeyService(t)
	projectID := uuid.New()

	resp, err := svc.Create(context.Background(), apikeydomain.CreateRequest{
		ProjectID: projectID.String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(resp.Secret, "ak_") {
		t.Fatalf("expected secret with ak_ prefix, got %q", resp.Secret)
	}
	if resp.APIKey.Hash == resp.Secret {
		t.Fatal("raw secret must not be persisted")
	}
	if resp.APIKey.Hash != apikeydomain.HashSecret(resp.Secret) {
		t.Fatal("stored hash does not match secret")
	}

	var stored apikeydomain.APIKey
	if err := db.Where("id = ?", resp.APIKey.ID).Take(&stored).Error; err != nil {
		t.Fatalf("load key: %v", err)
	}
	if stored.Hash != resp.APIKey.Hash {
		t.Fatal("persisted hash mismatch")
	}
}

func TestCreateDefaultsScopes(t *testing.T) {
	svc, _, _ := setupAPIKeyService(t)

	resp, err := svc.Create(context.Background(), apikeydomain.CreateRequest{
		ProjectID: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	scopes := []string(resp.APIKey.Scopes)
	if len(scopes) != 2 {
		t.Fatalf("expected 2 default scopes, got %v", scopes)
	}
	if scopes[0] != apikeydomain.ScopeUsageWrite || scopes[1] != apikeydomain.ScopeUsageRead {
		t.Fatalf("unexpected default scopes %v", scopes)
	}
}

func TestCreateRejectsInvalidProject(t *testing.T) {
	svc, _, _ := setupAPIKeyService(t)

	if _, err := svc.Create(context.Background(), apikeydomain.CreateRequest{ProjectID: "nope"}); err != apikeydomain.ErrInvalidProject {
		t.Fatalf("expected ErrInvalidProject, got %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _, clk := setupAPIKeyService(t)
	revoker := uuid.New()

	resp, err := svc.Create(context.Background(), apikeydomain.CreateRequest{
		ProjectID: uuid.New().String(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	clk.Advance(time.Minute)
	revoked, err := svc.Revoke(context.Background(), resp.APIKey.ID.String(), revoker.String())
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != apikeydomain.StatusRevoked || revoked.RevokedAt == nil {
		t.Fatal("expected key to be revoked")
	}
	if revoked.RevokedBy == nil || *revoked.RevokedBy != revoker {
		t.Fatal("expected revoked_by to be recorded")
	}

	again, err := svc.Revoke(context.Background(), resp.APIKey.ID.String(), revoker.String())
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if again.Status != apikeydomain.StatusRevoked {
		t.Fatal("expected second revoke to be a no-op")
	}
}

func TestListActiveExcludesRevoked(t *testing.T) {
	svc, _, _ := setupAPIKeyService(t)
	projectID := uuid.New()

	first, err := svc.Create(context.Background(), apikeydomain.CreateRequest{ProjectID: projectID.String()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(context.Background(), apikeydomain.CreateRequest{ProjectID: projectID.String()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Revoke(context.Background(), first.APIKey.ID.String(), ""); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	keys, err := svc.ListActive(context.Background(), projectID.String())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 active key, got %d", len(keys))
	}
	if keys[0].ID == first.APIKey.ID {
		t.Fatal("revoked key must not be listed")
	}

	has, err := svc.HasActiveKeys(context.Background(), projectID.String())
	if err != nil {
		t.Fatalf("has active keys: %v", err)
	}
	if !has {
		t.Fatal("expected project to have active keys")
	}
}

func setupAPIKeyService(t *testing.T) (apikeydomain.Service, *gorm.DB, *clock.FakeClock) {
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
	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
	})
	return svc, db, clk
}
