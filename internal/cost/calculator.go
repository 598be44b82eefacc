// Package cost prices LLM token usage so batch summaries can report an
// estimated spend alongside record counts.
package cost

import "strings"

// ModelRate holds per-model token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-provider pricing tables keyed by model name. A key may be
// the full model name or a version-less prefix of it.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// DefaultRates returns published pay-as-you-go pricing for the models the
// resolver is normally configured with.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
		},
	}
}

// Calculator computes completion costs from token counts.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost of completions against a model. Unknown
// providers or models price at zero rather than guessing.
func (c *Calculator) Completion(provider, model string, inputTokens, outputTokens int) float64 {
	rate, ok := c.rateFor(provider, model)
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

func (c *Calculator) rateFor(provider, model string) (ModelRate, bool) {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "gemini":
		table = c.rates.Gemini
	default:
		return ModelRate{}, false
	}

	if rate, ok := table[model]; ok {
		return rate, true
	}
	// Dated releases ("claude-haiku-4-5-20251001") fall back to their
	// version-less table entry.
	for key, rate := range table {
		if strings.HasPrefix(model, key) {
			return rate, true
		}
	}
	return ModelRate{}, false
}
