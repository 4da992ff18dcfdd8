package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/config"
	"github.com/hudson-blanoire/chroma-server/internal/store"
	storebolt "github.com/hudson-blanoire/chroma-server/internal/store/bolt"
	storepg "github.com/hudson-blanoire/chroma-server/internal/store/postgres"
	storesqlite "github.com/hudson-blanoire/chroma-server/internal/store/sqlite"
)

// NewStore opens the store selected by cfg.DBDriver.
// Postgres also launches an async bootstrap check; it never blocks startup.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		path := cfg.SQLitePath()
		s, err := storesqlite.New(ctx, path)
		if err != nil {
			return nil, err
		}
		if path == "" {
			log.Info().Str("driver", cfg.DBDriver).Msg("using in-memory store; data is not persisted")
		} else {
			log.Info().Str("driver", cfg.DBDriver).Str("path", path).Msg("store opened")
		}
		return s, nil

	case config.DriverBolt:
		s, err := storebolt.Open(cfg.BoltPath())
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.DBDriver).Str("path", cfg.BoltPath()).Msg("store opened")
		return s, nil

	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("CHROMA_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		// Open and migrate synchronously since health checks need it immediately
		s, err := storepg.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		go func() {
			bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
			bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
			defer cancel()

			if err := storepg.Bootstrap(bootstrapCtx, cfg.PostgresDSN); err != nil {
				log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store bootstrap check failed")
			} else {
				log.Debug().Str("driver", cfg.DBDriver).Msg("store bootstrap check completed")
			}
		}()
		return s, nil
	}
	return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
}
