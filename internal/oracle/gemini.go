// internal/oracle/gemini.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// ErrUnavailable wraps failures to obtain any decision from the model after
// retries are exhausted.
var ErrUnavailable = errors.New("reasoning oracle unavailable")

// GeminiClient implements schemas.OracleClient against the Gemini API. Each
// decision request carries the screenshot inline as an image part alongside
// the page digest and conversation history.
type GeminiClient struct {
	client *genai.Client
	cfg    config.OracleConfig
	logger *zap.Logger
}

var _ schemas.OracleClient = (*GeminiClient)(nil)

// NewGeminiClient creates the oracle client.
func NewGeminiClient(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		cfg:    cfg,
		logger: logger.Named("oracle.gemini"),
	}, nil
}

// Decide sends the current observation to the model and returns its parsed
// decision. Transient API failures are retried with exponential backoff; a
// permanently failing call returns ErrUnavailable.
func (c *GeminiClient) Decide(ctx context.Context, req schemas.DecisionRequest) (schemas.Decision, error) {
	contents := c.buildContents(req)
	genCfg := c.buildGenerationConfig()

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = c.cfg.RetryMaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}

	var raw string
	operation := func() error {
		callCtx := ctx
		if c.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.APITimeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := c.client.Models.GenerateContent(callCtx, c.cfg.Model, contents, genCfg)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return c.classifyError(err)
		}

		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			reason := ""
			if resp.PromptFeedback != nil {
				reason = string(resp.PromptFeedback.BlockReason)
			}
			return backoff.Permanent(fmt.Errorf("model returned no candidates (block reason: %s)", reason))
		}

		text := collectText(resp.Candidates[0].Content)
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("model returned empty content (finish reason: %s)", resp.Candidates[0].FinishReason)
		}

		c.logger.Debug("Decision received.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_len", len(text)))
		raw = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return schemas.Decision{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	decision := ParseDecision(raw)
	if c.cfg.MaxActions > 0 && len(decision.Actions) > c.cfg.MaxActions {
		c.logger.Warn("Decision exceeded action budget; truncating.",
			zap.Int("requested", len(decision.Actions)),
			zap.Int("allowed", c.cfg.MaxActions))
		decision.Actions = decision.Actions[:c.cfg.MaxActions]
	}
	return decision, nil
}

func (c *GeminiClient) buildContents(req schemas.DecisionRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		switch msg.Role {
		case schemas.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case schemas.RoleSystem:
			contents = append(contents, genai.NewContentFromText("[system] "+msg.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(req.TaskDescription)
	if req.Screenshot != nil {
		sb.WriteString("\n\nCurrent page: ")
		sb.WriteString(req.Screenshot.Meta.URL)
		if req.Screenshot.Meta.Title != "" {
			sb.WriteString(" (")
			sb.WriteString(req.Screenshot.Meta.Title)
			sb.WriteString(")")
		}
	}
	if req.PageSummary != "" {
		sb.WriteString("\n\nInteractive elements:\n")
		sb.WriteString(req.PageSummary)
	}
	sb.WriteString("\n\nDecide the next actions.")

	parts := []*genai.Part{genai.NewPartFromText(sb.String())}
	if req.Screenshot != nil && len(req.Screenshot.Bytes) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Screenshot.Bytes, "image/png"))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	return contents
}

func (c *GeminiClient) buildGenerationConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	if c.cfg.Temperature > 0 {
		temp := c.cfg.Temperature
		cfg.Temperature = &temp
	}
	if c.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = c.cfg.MaxTokens
	}
	return cfg
}

// classifyError separates retryable API failures from permanent ones.
func (c *GeminiClient) classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			c.logger.Warn("Transient API error, retrying.", zap.Int("code", apiErr.Code), zap.Error(err))
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	// Network-level failures are retryable.
	c.logger.Warn("Network error during decision request, retrying.", zap.Error(err))
	return err
}

func collectText(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
