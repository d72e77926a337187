package migration

import (
	accountdomain "github.com/pulseledger/xrpwatch/internal/account/domain"
	assetdomain "github.com/pulseledger/xrpwatch/internal/asset/domain"
	"github.com/pulseledger/xrpwatch/internal/config"
	paymentdomain "github.com/pulseledger/xrpwatch/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations are written for Postgres. The other
		// dialects fall back to schema sync from the models, which is
		// what local sqlite development uses anyway.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&accountdomain.Account{},
				&assetdomain.Asset{},
				&paymentdomain.Payment{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
