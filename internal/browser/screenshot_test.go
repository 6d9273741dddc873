// internal/browser/screenshot_test.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/mocks"
)

func newShotPage(png []byte) *mocks.MockPageDriver {
	page := new(mocks.MockPageDriver)
	page.On("CaptureScreenshot", mock.Anything).Return(png, nil)
	page.On("URL", mock.Anything).Return("https://example.com", nil)
	page.On("Title", mock.Anything).Return("Example", nil)
	page.On("ViewportSize", mock.Anything).Return(int64(1280), int64(800), nil)
	return page
}

func TestCaptureNilPage(t *testing.T) {
	source := NewScreenshotSource(config.ScreenshotConfig{}, zap.NewNop())
	_, err := source.Capture(context.Background(), nil, "task-1")
	require.ErrorIs(t, err, ErrNoActivePage)
}

func TestCaptureBuildsSnapshot(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	page := newShotPage(png)
	source := NewScreenshotSource(config.ScreenshotConfig{MinCaptureInterval: time.Nanosecond}, zap.NewNop())

	shot, err := source.Capture(context.Background(), page, "task-1")
	require.NoError(t, err)
	require.Equal(t, png, shot.Bytes)
	require.Equal(t, base64.StdEncoding.EncodeToString(png), shot.Base64)
	require.Equal(t, "https://example.com", shot.Meta.URL)
	require.Equal(t, "Example", shot.Meta.Title)
	require.Equal(t, int64(1280), shot.Meta.Width)
	require.Equal(t, int64(800), shot.Meta.Height)
	require.False(t, shot.Meta.Timestamp.IsZero())
}

func TestCaptureThrottleServesCachedSnapshot(t *testing.T) {
	page := new(mocks.MockPageDriver)
	page.On("CaptureScreenshot", mock.Anything).Return([]byte{1, 2, 3}, nil).Once()
	page.On("URL", mock.Anything).Return("https://example.com", nil).Once()
	page.On("Title", mock.Anything).Return("Example", nil).Once()
	page.On("ViewportSize", mock.Anything).Return(int64(1280), int64(800), nil).Once()

	// An hour between captures: the second request must not touch the driver.
	source := NewScreenshotSource(config.ScreenshotConfig{MinCaptureInterval: time.Hour}, zap.NewNop())

	first, err := source.Capture(context.Background(), page, "task-1")
	require.NoError(t, err)

	second, err := source.Capture(context.Background(), page, "task-1")
	require.NoError(t, err)
	require.Same(t, first, second)
	page.AssertExpectations(t)
}

func TestCaptureDriverError(t *testing.T) {
	page := new(mocks.MockPageDriver)
	page.On("CaptureScreenshot", mock.Anything).Return(nil, errors.New("target crashed"))

	source := NewScreenshotSource(config.ScreenshotConfig{MinCaptureInterval: time.Nanosecond}, zap.NewNop())
	_, err := source.Capture(context.Background(), page, "task-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "driver screenshot failed")
}

func TestCapturePersistsForAudit(t *testing.T) {
	dir := t.TempDir()
	page := newShotPage([]byte{0x89, 0x50})
	source := NewScreenshotSource(config.ScreenshotConfig{
		Persist:            true,
		Dir:                dir,
		MinCaptureInterval: time.Nanosecond,
	}, zap.NewNop())

	_, err := source.Capture(context.Background(), page, "task-42")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "task-42"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var sawPNG, sawJSON bool
	for _, entry := range entries {
		switch filepath.Ext(entry.Name()) {
		case ".png":
			sawPNG = true
		case ".json":
			sawJSON = true
		}
	}
	require.True(t, sawPNG)
	require.True(t, sawJSON)
}

func TestCaptureSkipsPersistWithoutTaskID(t *testing.T) {
	dir := t.TempDir()
	page := newShotPage([]byte{0x89})
	source := NewScreenshotSource(config.ScreenshotConfig{
		Persist:            true,
		Dir:                dir,
		MinCaptureInterval: time.Nanosecond,
	}, zap.NewNop())

	_, err := source.Capture(context.Background(), page, "")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
