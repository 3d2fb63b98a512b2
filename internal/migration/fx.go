package migration

import (
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	billingdomain "github.com/reelcomic/reelcomic/internal/billing/domain"
	"github.com/reelcomic/reelcomic/internal/config"
	"github.com/reelcomic/reelcomic/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite is the zero-setup local path; golang-migrate only
			// carries the postgres scripts.
			if err := conn.AutoMigrate(
				&authdomain.User{},
				&authdomain.Credential{},
				&authdomain.ProviderAccount{},
				&authdomain.Session{},
				&billingdomain.SubscriptionPlan{},
				&billingdomain.Subscription{},
				&billingdomain.Payment{},
				&billingdomain.WebhookEvent{},
			); err != nil {
				return err
			}
		}

		return seed.EnsurePlans(conn)
	}),
)
