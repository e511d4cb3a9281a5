package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/teemow/inboxtriage/internal/instrumentation"
	"github.com/teemow/inboxtriage/internal/logging"
)

// DefaultBaseURL points at the OpenRouter OpenAI-compatible API.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string

	// MaxRetries is passed to the SDK. Zero disables SDK retries.
	MaxRetries int

	// Timeout bounds a single completion call, including retries.
	Timeout time.Duration

	// HTTPClient overrides the SDK's default HTTP client.
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// OpenAIClient is a Completer backed by any OpenAI-compatible chat API.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for the configured endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:  &client,
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		logger:  logging.WithService(cfg.Logger, "ai"),
	}
}

// Complete sends req as a chat completion and returns the trimmed text of
// the first choice. Errors are passed through Classify.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}

	ctx, span := instrumentation.StartAISpan(ctx, model)
	defer span.End()

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err == nil && len(completion.Choices) == 0 {
		err = ErrNoChoices
	}
	err = Classify(err)
	c.metrics.RecordAICall(ctx, model, Outcome(err), time.Since(start))

	if err != nil {
		instrumentation.SetSpanError(span, err)
		c.logger.Warn("completion failed", slog.String("model", model), logging.Err(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	instrumentation.SetSpanSuccess(span)

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
