// Package gemini implements the completion backend on Google's genai SDK.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/mdm-cli/internal/resilience"
	"github.com/sells-group/mdm-cli/pkg/llm"
)

// DefaultModel is used when the request does not name one.
const DefaultModel = "gemini-2.0-flash"

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

type client struct {
	genai *genai.Client
	model string
}

// New creates a Gemini-backed completion provider.
func New(ctx context.Context, apiKey string, opts ...Option) (llm.Provider, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	c := &client{genai: gc, model: DefaultModel}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *client) Name() string { return "gemini" }

// Complete runs one generate-content call. ForceJSON maps to the native
// application/json response mode. Retryable API failures come back wrapped
// in resilience.TransientError.
func (c *client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.ForceJSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.genai.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, classifyErr(err)
	}

	out := &llm.Response{
		Text:  resp.Text(),
		Model: model,
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	return out, nil
}

// classifyErr maps genai failures onto the retry taxonomy. The API error
// code is the HTTP status.
func classifyErr(err error) error {
	wrapped := eris.Wrap(err, "gemini: generate content")

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if resilience.IsTransientHTTPStatus(apiErr.Code) {
			return resilience.NewTransientError(wrapped, apiErr.Code)
		}
		return wrapped
	}

	if resilience.IsTransient(err) {
		return resilience.NewTransientError(wrapped, 0)
	}
	return wrapped
}
