// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/executor"
	"github.com/xkilldash9x/pagepilot/internal/handoff"
	"github.com/xkilldash9x/pagepilot/internal/observability"
	"github.com/xkilldash9x/pagepilot/internal/oracle"
	"github.com/xkilldash9x/pagepilot/internal/store"
	"github.com/xkilldash9x/pagepilot/internal/supervisor"
)

// Components holds the initialized services required to run tasks. It
// centralizes lifecycle management of the browser, the task loops and the
// database pool.
type Components struct {
	Store       *store.Store
	Browser     *browser.Manager
	Screenshots *browser.ScreenshotSource
	Executor    *executor.Executor
	Oracle      *oracle.GeminiClient
	Bus         *supervisor.EventBus
	Handoff     *handoff.Controller
	Supervisor  *supervisor.Supervisor
	DBPool      *pgxpool.Pool
}

// Shutdown closes all components in dependency order: task loops first so no
// new browser or database work is produced, then the browser, then the pool.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.Supervisor != nil {
		c.Supervisor.Shutdown(shutdownCtx)
		logger.Debug("Supervisor stopped.")
	}

	if c.Browser != nil {
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
