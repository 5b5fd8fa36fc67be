package migration

import (
	"strings"

	"github.com/astralhq/keychain/internal/config"
	"github.com/astralhq/keychain/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, holder *config.QuotaDefaultsHolder, log *zap.Logger) error {
		// The embedded migrations are written for postgres. Other dialects
		// are expected to manage schema externally.
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			log.Warn("migration.skipped", zap.String("dialect", conn.Dialector.Name()))
		}

		return seed.EnsureDefaultPlans(conn, holder.Get())
	}),
)
