// internal/browser/screenshot.go
package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// ErrNoActivePage is returned when a capture is requested without a bound page.
var ErrNoActivePage = errors.New("no active page bound for screenshot capture")

// identifiable lets the source key captures by a stable page identity.
type identifiable interface {
	ID() string
}

// ScreenshotSource captures visual snapshots of a page plus URL/title/viewport
// metadata. Captures are serialized per page: an overlapping request joins the
// in-flight capture instead of double-invoking the driver, and capture
// frequency is rate-limited with the most recent snapshot served in between.
type ScreenshotSource struct {
	cfg    config.ScreenshotConfig
	logger *zap.Logger

	group singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	last     map[string]*schemas.Screenshot
}

// NewScreenshotSource creates a screenshot source.
func NewScreenshotSource(cfg config.ScreenshotConfig, logger *zap.Logger) *ScreenshotSource {
	return &ScreenshotSource{
		cfg:      cfg,
		logger:   logger.Named("screenshot"),
		limiters: make(map[string]*rate.Limiter),
		last:     make(map[string]*schemas.Screenshot),
	}
}

func pageKey(page schemas.PageDriver) string {
	if ident, ok := page.(identifiable); ok {
		return ident.ID()
	}
	return fmt.Sprintf("%p", page)
}

func (s *ScreenshotSource) limiterFor(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[key]
	if !ok {
		interval := s.cfg.MinCaptureInterval
		if interval <= 0 {
			interval = 250 * time.Millisecond
		}
		lim = rate.NewLimiter(rate.Every(interval), 1)
		s.limiters[key] = lim
	}
	return lim
}

// Capture takes a screenshot of the page. taskID keys optional audit
// persistence; pass "" to skip association.
func (s *ScreenshotSource) Capture(ctx context.Context, page schemas.PageDriver, taskID string) (*schemas.Screenshot, error) {
	if page == nil {
		return nil, ErrNoActivePage
	}
	key := pageKey(page)

	// Throttle: when captures arrive faster than the driver should be asked,
	// serve the most recent snapshot instead.
	if !s.limiterFor(key).Allow() {
		s.mu.Lock()
		cached := s.last[key]
		s.mu.Unlock()
		if cached != nil {
			s.logger.Debug("Capture throttled; serving previous snapshot.", zap.String("page", key))
			return cached, nil
		}
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.capture(ctx, page)
	})
	if err != nil {
		return nil, err
	}
	shot := v.(*schemas.Screenshot)
	if shared {
		s.logger.Debug("Joined in-flight capture.", zap.String("page", key))
	}

	s.mu.Lock()
	s.last[key] = shot
	s.mu.Unlock()

	if s.cfg.Persist && taskID != "" {
		// Audit persistence must never fail the capture.
		if perr := s.persist(taskID, shot); perr != nil {
			s.logger.Warn("Failed to persist screenshot for audit.", zap.String("task_id", taskID), zap.Error(perr))
		}
	}
	return shot, nil
}

func (s *ScreenshotSource) capture(ctx context.Context, page schemas.PageDriver) (*schemas.Screenshot, error) {
	bytes, err := page.CaptureScreenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("driver screenshot failed: %w", err)
	}

	meta := schemas.ScreenshotMeta{Timestamp: time.Now().UTC()}
	if url, uerr := page.URL(ctx); uerr == nil {
		meta.URL = url
	}
	if title, terr := page.Title(ctx); terr == nil {
		meta.Title = title
	}
	if w, h, verr := page.ViewportSize(ctx); verr == nil {
		meta.Width, meta.Height = w, h
	}

	return &schemas.Screenshot{
		Bytes:  bytes,
		Base64: base64.StdEncoding.EncodeToString(bytes),
		Meta:   meta,
	}, nil
}

// persist writes the PNG and a sibling metadata record, keyed by task id and
// capture timestamp.
func (s *ScreenshotSource) persist(taskID string, shot *schemas.Screenshot) error {
	dir := filepath.Join(s.cfg.Dir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	stamp := shot.Meta.Timestamp.Format("20060102T150405.000")
	pngPath := filepath.Join(dir, stamp+".png")
	if err := os.WriteFile(pngPath, shot.Bytes, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}

	metaBytes, err := json.Marshal(shot.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal screenshot metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stamp+".json"), metaBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot metadata: %w", err)
	}
	return nil
}
