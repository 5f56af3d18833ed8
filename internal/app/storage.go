package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderflow/internal/domain"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderflow/internal/storage/postgres"
)

const storageInitTimeout = 30 * time.Second

// storageBackend — выбранное хранилище вместе с его жизненным циклом.
type storageBackend struct {
	driver string
	store  domain.Store
	ping   func(ctx context.Context) error
	close  func() error
}

// initStorage открывает хранилище согласно cfg.StorageDriver.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storageBackend, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore(
			memory.WithMaxPendingOutbox(cfg.OutboxMaxPending),
			memory.WithLogger(logger.WithField("storage", StorageDriverMemory)),
		)
		logger.Info("using in-memory storage")
		return &storageBackend{
			driver: StorageDriverMemory,
			store:  store,
			ping:   func(context.Context) error { return nil },
			close:  func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		initCtx, cancel := context.WithTimeout(ctx, storageInitTimeout)
		defer cancel()

		store, err := postgres.Open(initCtx, cfg.PostgresDSN,
			postgres.WithLogger(logger.WithField("storage", StorageDriverPostgres)))
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(initCtx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		} else if state, err := store.MigrationStatus(initCtx); err != nil {
			logger.WithError(err).Warn("failed to read migration status")
		} else if state.Pending > 0 {
			logger.WithFields(log.Fields{
				"version": state.Version,
				"pending": state.Pending,
			}).Warn("postgres schema has pending migrations, run cmd/migrate")
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
		return &storageBackend{
			driver: StorageDriverPostgres,
			store:  store,
			ping:   store.Ping,
			close:  store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
