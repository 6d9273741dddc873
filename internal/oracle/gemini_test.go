// internal/oracle/gemini_test.go
package oracle

import (
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

func newTestClient(cfg config.OracleConfig) *GeminiClient {
	return &GeminiClient{cfg: cfg, logger: zap.NewNop()}
}

func TestBuildContentsMapsRoles(t *testing.T) {
	c := newTestClient(config.OracleConfig{})

	contents := c.buildContents(schemas.DecisionRequest{
		TaskDescription: "find the pricing page",
		PageSummary:     "a#pricing [Pricing]",
		History: []schemas.Message{
			{Role: schemas.RoleUser, Content: "start"},
			{Role: schemas.RoleAssistant, Content: "navigating"},
			{Role: schemas.RoleSystem, Content: "action a1 failed"},
		},
	})

	// Three history turns plus the current observation.
	require.Len(t, contents, 4)
	require.Equal(t, genai.RoleUser, contents[0].Role)
	require.Equal(t, genai.RoleModel, contents[1].Role)
	require.Equal(t, genai.RoleUser, contents[2].Role)
	require.Contains(t, contents[2].Parts[0].Text, "[system] action a1 failed")

	final := contents[3]
	require.Equal(t, genai.RoleUser, final.Role)
	require.Contains(t, final.Parts[0].Text, "Task: find the pricing page")
	require.Contains(t, final.Parts[0].Text, "Interactive elements:")
	// No screenshot attached means a single text part.
	require.Len(t, final.Parts, 1)
}

func TestBuildContentsAttachesScreenshot(t *testing.T) {
	c := newTestClient(config.OracleConfig{})

	contents := c.buildContents(schemas.DecisionRequest{
		TaskDescription: "read the headline",
		Screenshot: &schemas.Screenshot{
			Bytes: []byte{0x89, 0x50},
			Meta:  schemas.ScreenshotMeta{URL: "https://example.com", Title: "Example"},
		},
	})

	require.Len(t, contents, 1)
	final := contents[0]
	require.Len(t, final.Parts, 2)
	require.Contains(t, final.Parts[0].Text, "Current page: https://example.com (Example)")
	require.NotNil(t, final.Parts[1].InlineData)
	require.Equal(t, "image/png", final.Parts[1].InlineData.MIMEType)
}

func TestBuildGenerationConfig(t *testing.T) {
	c := newTestClient(config.OracleConfig{Temperature: 0.2, MaxTokens: 4096})

	cfg := c.buildGenerationConfig()
	require.Equal(t, "application/json", cfg.ResponseMIMEType)
	require.NotNil(t, cfg.SystemInstruction)
	require.NotNil(t, cfg.Temperature)
	require.InDelta(t, 0.2, float64(*cfg.Temperature), 0.0001)
	require.Equal(t, int32(4096), cfg.MaxOutputTokens)

	// Zero values leave the model defaults alone.
	cfg = newTestClient(config.OracleConfig{}).buildGenerationConfig()
	require.Nil(t, cfg.Temperature)
	require.Zero(t, cfg.MaxOutputTokens)
}

func TestClassifyError(t *testing.T) {
	c := newTestClient(config.OracleConfig{})

	var permanent *backoff.PermanentError

	// Rate limits and server errors retry.
	err := c.classifyError(genai.APIError{Code: 429, Message: "rate limited"})
	require.False(t, errors.As(err, &permanent))
	err = c.classifyError(genai.APIError{Code: 503, Message: "overloaded"})
	require.False(t, errors.As(err, &permanent))

	// Client errors do not.
	err = c.classifyError(genai.APIError{Code: 400, Message: "bad request"})
	require.True(t, errors.As(err, &permanent))
	err = c.classifyError(genai.APIError{Code: 404, Message: "no such model"})
	require.True(t, errors.As(err, &permanent))

	// Plain network failures retry.
	err = c.classifyError(errors.New("connection reset"))
	require.False(t, errors.As(err, &permanent))
}

func TestNewGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient(t.Context(), config.OracleConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestCollectText(t *testing.T) {
	content := &genai.Content{Parts: []*genai.Part{
		{Text: "hello "},
		nil,
		{Text: "world"},
	}}
	require.Equal(t, "hello world", collectText(content))
}
