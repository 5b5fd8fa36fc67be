package owner

import (
	"github.com/astralhq/keychain/internal/owner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("owner",
	fx.Provide(
		service.NewService,
	),
)
