// Package anthropic implements the completion backend on the official
// Anthropic SDK.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/resilience"
	"github.com/sells-group/mdm-cli/pkg/llm"
)

const (
	// DefaultModel is used when the request does not name one.
	DefaultModel = "claude-haiku-4-5-20251001"

	defaultMaxTokens = 1024
)

// Option configures the client.
type Option func(*client)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithSystemCache enables ephemeral prompt caching on the system block.
// Worth it when thousands of records in a batch share one system prompt.
func WithSystemCache() Option {
	return func(c *client) {
		c.cacheSystem = true
	}
}

type client struct {
	sdk         sdk.Client
	model       string
	cacheSystem bool
}

// New creates an Anthropic-backed completion provider.
func New(apiKey string, opts ...Option) (llm.Provider, error) {
	if apiKey == "" {
		return nil, eris.New("anthropic: api key required")
	}
	c := &client{
		sdk:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: DefaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *client) Name() string { return "anthropic" }

// Complete runs one message call. Retryable API failures come back wrapped
// in resilience.TransientError; rate limits carry the server's Retry-After.
// The Messages API has no native JSON output mode, so ForceJSON is carried
// by the prompt alone.
func (c *client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = c.systemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyErr(err)
	}

	usage := TokenUsage{
		InputTokens:              msg.Usage.InputTokens,
		OutputTokens:             msg.Usage.OutputTokens,
		CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
	}
	usage.LogCost(string(msg.Model), "resolve")

	return &llm.Response{
		Text:       textContent(msg),
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(usage.InputTokens),
			OutputTokens: int(usage.OutputTokens),
		},
	}, nil
}

func (c *client) systemBlocks(text string) []sdk.TextBlockParam {
	block := sdk.TextBlockParam{Text: text}
	if c.cacheSystem {
		block.CacheControl = sdk.NewCacheControlEphemeralParam()
	}
	return []sdk.TextBlockParam{block}
}

// textContent concatenates the text blocks of a response, skipping tool-use
// and thinking blocks.
func textContent(msg *sdk.Message) string {
	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// classifyErr maps SDK failures onto the retry taxonomy: 429 and 5xx are
// transient, 429 additionally carries the server's requested wait.
func classifyErr(err error) error {
	wrapped := eris.Wrap(err, "anthropic: create message")

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests {
			return resilience.NewRateLimitedError(wrapped, retryAfter(apierr.Response))
		}
		if resilience.IsTransientHTTPStatus(apierr.StatusCode) {
			return resilience.NewTransientError(wrapped, apierr.StatusCode)
		}
		return wrapped
	}

	if resilience.IsTransient(err) {
		return resilience.NewTransientError(wrapped, 0)
	}
	return wrapped
}

// retryAfter parses the seconds form of the Retry-After header.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
