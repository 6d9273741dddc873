// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/executor"
	"github.com/xkilldash9x/pagepilot/internal/handoff"
	"github.com/xkilldash9x/pagepilot/internal/oracle"
	"github.com/xkilldash9x/pagepilot/internal/store"
	"github.com/xkilldash9x/pagepilot/internal/supervisor"
)

// ComponentFactory builds the full component graph. The indirection keeps the
// CLI commands testable against a fake factory.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// pageFactory adapts the browser manager to the supervisor's page interface.
type pageFactory struct {
	manager *browser.Manager
}

func (f pageFactory) NewPage(ctx context.Context) (schemas.PageDriver, error) {
	return f.manager.NewPage(ctx)
}

// Create wires config → store → browser → executor → oracle → handoff →
// supervisor. Partially created components are shut down when a later step
// fails.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Database pool and store.
	if cfg.Database.URL == "" {
		initializationErr = fmt.Errorf("database URL is not configured (hint: check PAGEPILOT_DATABASE_URL)")
		return nil, initializationErr
	}
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create database connection pool: %w", err)
		return nil, initializationErr
	}
	components.DBPool = dbPool

	dbStore, err := store.New(ctx, dbPool, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initializationErr
	}
	if err := dbStore.Migrate(ctx); err != nil {
		initializationErr = fmt.Errorf("failed to migrate schema: %w", err)
		return nil, initializationErr
	}
	components.Store = dbStore
	if ended, err := dbStore.CleanupInactiveSessions(ctx, cfg.Database.SessionTTL); err != nil {
		logger.Warn("Failed to sweep inactive sessions.", zap.Error(err))
	} else if ended > 0 {
		logger.Debug("Swept inactive sessions.", zap.Int64("ended", ended))
	}
	logger.Debug("Store initialized.")

	// 2. Browser layer.
	components.Browser = browser.NewManager(cfg.Browser, logger)
	components.Screenshots = browser.NewScreenshotSource(cfg.Screenshot, logger)
	logger.Debug("Browser manager initialized.")

	// 3. Executor behind the safety policy.
	safety := executor.NewSafetyPolicy(cfg.Safety)
	components.Executor = executor.New(cfg.Browser, safety, logger)
	logger.Debug("Action executor initialized.")

	// 4. Reasoning oracle.
	oracleClient, err := oracle.NewGeminiClient(ctx, cfg.Oracle, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize oracle client: %w", err)
		return nil, initializationErr
	}
	components.Oracle = oracleClient
	logger.Debug("Oracle client initialized.")

	// 5. Event bus and handoff controller.
	components.Bus = supervisor.NewEventBus(cfg.Supervisor.EventBufferSize, logger)
	components.Handoff = handoff.NewController(cfg.Handoff, components.Bus, logger)
	logger.Debug("Event bus and handoff controller initialized.")

	// 6. Supervisor.
	components.Supervisor = supervisor.New(cfg.Supervisor, supervisor.Options{
		Pages:       pageFactory{manager: components.Browser},
		Screenshots: components.Screenshots,
		Executor:    components.Executor,
		Oracle:      oracleClient,
		Sequences:   dbStore,
		Sessions:    dbStore,
		Handoff:     components.Handoff,
		Bus:         components.Bus,
		Complete:    oracle.DefaultCompletion,
	}, logger)

	logger.Info("All components initialized successfully.")
	return components, nil
}
