package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/bv-engine/pkg/config"
	"github.com/angelmondragon/bv-engine/pkg/db"
	"github.com/angelmondragon/bv-engine/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on boot when running in dev
// with REFERRAL_AUTO_MIGRATE set. SQLite gets its schema on connect instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if client == nil || client.IsSQLite() {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, nil, logg)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "applying engine schema (dev auto-migrate)")
	if err := runner.Up(ctx); err != nil {
		return err
	}
	logg.Info(ctx, "engine schema up to date")
	return nil
}
