package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

// Service answers "may this actor perform this action on this object within
// this organization". Profile-owned resources skip it; only org resources
// carry role-based access.
type Service interface {
	Authorize(ctx context.Context, actor, orgID, object, action string) error
}

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

var Module = fx.Module("authorization",
	fx.Provide(
		NewEnforcer,
		NewService,
	),
)
