package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-reactions-backend/internal/config"
	httpapi "github.com/tbourn/go-reactions-backend/internal/http"
	"github.com/tbourn/go-reactions-backend/internal/repo"
	"github.com/tbourn/go-reactions-backend/internal/repo/mongostore"
)

// backend is a durable store the commands can run against.
type backend interface {
	httpapi.Store
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// openStore connects to the store selected by cfg.Driver. When migrate is
// set, SQL schemas are created or updated; mongo collections and their
// indexes are created lazily on first use.
func openStore(ctx context.Context, cfg config.StoreConfig, migrate bool) (backend, error) {
	if cfg.Driver == config.DriverMongo {
		st, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.Driver).Str("database", cfg.MongoDB).Msg("store connected")
		return st, nil
	}

	db, err := repo.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	st := repo.NewStore(db)
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, fmt.Errorf("ping %s store: %w", cfg.Driver, err)
	}
	log.Info().Str("driver", cfg.Driver).Bool("migrated", migrate).Msg("store connected")
	return st, nil
}
