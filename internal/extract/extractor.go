package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/resilience"
	"github.com/sells-group/tripmatch/pkg/anthropic"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// Extractor runs the extraction call for one document and returns the raw
// model text. It does not normalize the result.
type Extractor struct {
	Client    anthropic.Client
	Model     string
	MaxTokens int64
	Retry     resilience.RetryConfig
}

// NewExtractor returns an Extractor with default model and token limits.
func NewExtractor(client anthropic.Client, model string, maxTokens int64, retry resilience.RetryConfig) *Extractor {
	if model == "" {
		model = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Extractor{Client: client, Model: model, MaxTokens: maxTokens, Retry: retry}
}

// Extract asks the model for the reservations in doc. Examples, when given,
// are added to the system prompt. Transient API failures are retried per
// e.Retry.
func (e *Extractor) Extract(ctx context.Context, doc model.Document, examples []model.Example) (string, error) {
	if e.Client == nil {
		return "", eris.New("extract: no anthropic client configured")
	}

	system := BuildSystemPrompt(SystemPrompt, examples)
	req := anthropic.MessageRequest{
		Model:     e.Model,
		MaxTokens: e.MaxTokens,
		System:    anthropic.CachedSystem(system, "5m"),
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildPrompt(doc.Subject, doc.Body, doc.AttachmentText)},
		},
	}

	retry := e.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", "extract")
	}

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.Client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrapf(err, "extract: document %s", doc.ID)
	}

	resp.Usage.LogCost(e.Model, "extract")
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		zap.L().Warn("extract: empty model response",
			zap.String("document_id", doc.ID),
			zap.String("stop_reason", resp.StopReason),
		)
	}
	return text, nil
}
