package project

import (
	"github.com/astralhq/keychain/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project",
	fx.Provide(
		service.NewService,
	),
)
