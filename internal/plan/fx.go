package plan

import (
	"github.com/astralhq/keychain/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan",
	fx.Provide(
		service.NewService,
	),
)
