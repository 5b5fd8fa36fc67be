package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectUsage        = "usage"
	ObjectCounter      = "counter"
	ObjectPlan         = "plan"
	ObjectProject      = "project"
	ObjectAPIKey       = "api_key"
	ObjectOrganization = "organization"
	ObjectMember       = "member"
)

const (
	ActionUsageRecord = "usage.record"
	ActionUsageCheck  = "usage.check"
	ActionUsageView   = "usage.view"

	ActionCounterReset = "counter.reset"

	ActionPlanView  = "plan.view"
	ActionPlanApply = "plan.apply"

	ActionProjectView    = "project.view"
	ActionProjectCreate  = "project.create"
	ActionProjectUpdate  = "project.update"
	ActionProjectArchive = "project.archive"
	ActionProjectDelete  = "project.delete"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionOrganizationView   = "organization.view"
	ActionOrganizationUpdate = "organization.update"

	ActionMemberView   = "member.view"
	ActionMemberAdd    = "member.add"
	ActionMemberRemove = "member.remove"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, orgID, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization.denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor, orgID string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if raw, ok := strings.CutPrefix(actor, "api_key:"); ok {
		// API keys carry the system role; scope checks happen upstream
		// against the key's own scope list.
		if _, err := uuid.Parse(raw); err != nil {
			return "", "", ErrInvalidActor
		}
		return actor, "role:system", nil
	}
	if raw, ok := strings.CutPrefix(actor, "profile:"); ok {
		profileID, err := uuid.Parse(raw)
		if err != nil || profileID == uuid.Nil {
			return "", "", ErrInvalidActor
		}
		parsedOrgID, err := uuid.Parse(orgID)
		if err != nil || parsedOrgID == uuid.Nil {
			return "", "", ErrInvalidOrganization
		}
		role, err := s.roleForProfile(ctx, parsedOrgID, profileID)
		if err != nil {
			return "", "", err
		}
		return actor, fmt.Sprintf("role:%s", strings.ToLower(role)), nil
	}
	return "", "", ErrInvalidActor
}

func (s *ServiceImpl) roleForProfile(ctx context.Context, orgID, profileID uuid.UUID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM organization_members
		 WHERE organization_id = ? AND profile_id = ?
		 LIMIT 1`,
		orgID,
		profileID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Members read; they never mutate org resources.
		{"role:member", ObjectUsage, ActionUsageView},
		{"role:member", ObjectPlan, ActionPlanView},
		{"role:member", ObjectProject, ActionProjectView},
		{"role:member", ObjectOrganization, ActionOrganizationView},
		{"role:member", ObjectMember, ActionMemberView},

		// Admins manage everything inside the org.
		{"role:admin", ObjectUsage, ActionUsageView},
		{"role:admin", ObjectCounter, ActionCounterReset},
		{"role:admin", ObjectPlan, ActionPlanView},
		{"role:admin", ObjectPlan, ActionPlanApply},
		{"role:admin", ObjectProject, ActionProjectView},
		{"role:admin", ObjectProject, ActionProjectCreate},
		{"role:admin", ObjectProject, ActionProjectUpdate},
		{"role:admin", ObjectProject, ActionProjectArchive},
		{"role:admin", ObjectProject, ActionProjectDelete},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectOrganization, ActionOrganizationView},
		{"role:admin", ObjectOrganization, ActionOrganizationUpdate},
		{"role:admin", ObjectMember, ActionMemberView},
		{"role:admin", ObjectMember, ActionMemberAdd},
		{"role:admin", ObjectMember, ActionMemberRemove},

		// System role for automated callers and API keys.
		{"role:system", ObjectUsage, ActionUsageRecord},
		{"role:system", ObjectUsage, ActionUsageCheck},
		{"role:system", ObjectUsage, ActionUsageView},
		{"role:system", ObjectCounter, ActionCounterReset},
		{"role:system", ObjectPlan, ActionPlanView},
		{"role:system", ObjectProject, ActionProjectView},
		{"role:system", ObjectAPIKey, ActionAPIKeyView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
