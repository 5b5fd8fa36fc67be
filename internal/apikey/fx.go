package apikey

import (
	"github.com/astralhq/keychain/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey",
	fx.Provide(
		service.NewService,
	),
)
