// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the Chrome process lifecycle and hands out Page handles (one
// tab each). Initialization is deferred until the first page is requested.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	pages map[string]*Page
	mu    sync.RWMutex
	wg    sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. The browser itself is launched lazily.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		pages:  make(map[string]*Page),
	}
}

// initialize builds the chromedp allocator the first time a page is needed.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser allocator.",
			zap.Bool("headless", m.cfg.Headless),
			zap.Int64("width", m.cfg.WindowWidth),
			zap.Int64("height", m.cfg.WindowHeight))

		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts,
			chromedp.Flag("headless", m.cfg.Headless),
			chromedp.WindowSize(int(m.cfg.WindowWidth), int(m.cfg.WindowHeight)),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if m.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
		}
		if m.cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
		}
		if m.cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}

		// The allocator must outlive the caller's context; pages derive from it.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	})
	return m.initErr
}

// NewPage creates a new tab wrapped in a Page handle.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	page, err := newPage(m.allocCtx, m.cfg, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	m.wg.Add(1)
	page.onClose = func() {
		m.mu.Lock()
		delete(m.pages, page.ID())
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Page removed from manager.", zap.String("page_id", page.ID()))
	}

	m.mu.Lock()
	m.pages[page.ID()] = page
	m.mu.Unlock()

	m.logger.Info("New page created.", zap.String("page_id", page.ID()))
	return page, nil
}

// Shutdown closes all pages and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.allocCtx == nil {
		m.logger.Info("Manager never initialized, nothing to shut down.")
		return nil
	}
	m.logger.Info("Shutting down browser manager.")

	m.mu.RLock()
	pagesToClose := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pagesToClose = append(pagesToClose, p)
	}
	m.mu.RUnlock()

	for _, p := range pagesToClose {
		go func(p *Page) {
			if err := p.Close(); err != nil {
				m.logger.Warn("Error closing page during shutdown.", zap.String("page_id", p.ID()), zap.Error(err))
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for pages to close; forcing shutdown.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period elapsed waiting for pages to close; forcing shutdown.")
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
