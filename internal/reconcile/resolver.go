package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/resilience"
	"github.com/sells-group/mdm-cli/pkg/llm"
)

// ResolverConfig tunes the resolver. Zero values take defaults.
type ResolverConfig struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Timeout bounds each individual provider call.
	Timeout time.Duration

	// RequestsPerSecond throttles calls across all workers sharing the
	// resolver. Zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// DefaultConfidence applies when the response carries no confidence of
	// its own.
	DefaultConfidence float64

	MaxTokens int

	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

const (
	defaultResolveTimeout    = 30 * time.Second
	defaultResolveConfidence = 0.6
	defaultResolveMaxTokens  = 256
)

var resolveTemperature = 0.2

// Resolver issues one model call per triggered record. Every outcome folds
// into a terminal ResolutionResult; transport failures that outlive the
// retry budget become review flags rather than errors, so one bad record
// cannot abort a batch.
type Resolver struct {
	provider    llm.Provider
	modelName   string
	timeout     time.Duration
	maxTokens   int
	defaultConf float64
	retry       resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	limiter     *rate.Limiter
}

// NewResolver wires a resolver around one provider. The circuit breaker and
// rate limiter are shared by every worker that uses this resolver.
func NewResolver(provider llm.Provider, cfg ResolverConfig) *Resolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultResolveTimeout
	}
	if cfg.DefaultConfidence <= 0 {
		cfg.DefaultConfidence = defaultResolveConfidence
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultResolveMaxTokens
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger(provider.Name(), "resolve")
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = resilience.DefaultCircuitBreakerConfig()
	}
	if cfg.Breaker.ShouldTrip == nil {
		cfg.Breaker.ShouldTrip = resilience.IsTransient
	}
	if cfg.Breaker.OnStateChange == nil {
		cfg.Breaker.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("resolver circuit state changed",
				zap.String("provider", provider.Name()),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Resolver{
		provider:    provider,
		modelName:   cfg.Model,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		defaultConf: cfg.DefaultConfidence,
		retry:       cfg.Retry,
		breaker:     resilience.NewCircuitBreaker(cfg.Breaker),
		limiter:     limiter,
	}
}

// Resolve runs the scenario prompt for rec and returns a terminal result.
// Retries cover transient transport failures only; a sentinel or malformed
// reply is an answer, not a failure, and is never re-spent. Cancelling ctx
// stops new calls from being issued while a call already in flight runs to
// completion or its own timeout.
func (r *Resolver) Resolve(ctx context.Context, rec model.PersonRecord, mode TriggerMode) model.ResolutionResult {
	start := time.Now()
	out := model.ResolutionResult{
		Mode:     string(mode),
		Provider: r.provider.Name(),
	}

	prompt := buildPrompt(mode, promptContext(rec))

	var attempts int
	resp, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*llm.Response, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		attempts++

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		resp, err := resilience.ExecuteVal(callCtx, r.breaker, func(ctx context.Context) (*llm.Response, error) {
			return r.provider.Complete(ctx, llm.Request{
				Model:       r.modelName,
				System:      resolveSystemPrompt,
				Prompt:      prompt,
				MaxTokens:   r.maxTokens,
				Temperature: &resolveTemperature,
				ForceJSON:   true,
			})
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// Spend a retry slot waiting out the open window instead of
			// failing the record outright.
			return nil, resilience.NewTransientError(err, 0)
		}
		return resp, err
	})

	out.Attempts = attempts
	out.ElapsedMS = time.Since(start).Milliseconds()

	if err != nil {
		out.ReviewRequired = true
		out.Failed = true
		out.RawModelOutput = err.Error()
		zap.L().Warn("resolution exhausted",
			zap.String("record_id", rec.ID),
			zap.String("mode", string(mode)),
			zap.Int("attempts", attempts),
			zap.String("error_class", resilience.ClassifyError(err)),
			zap.Error(err))
		return out
	}

	out.RawModelOutput = resp.Text
	out.TokensIn = resp.Usage.InputTokens
	out.TokensOut = resp.Usage.OutputTokens

	parsed := parseResolution(resp.Text)
	switch parsed.kind {
	case parsedTitle:
		out.ResolvedTitle = parsed.title
		if parsed.hasConf {
			out.Confidence = parsed.confidence
		} else {
			out.Confidence = r.defaultConf
		}
	case parsedReview:
		out.ReviewRequired = true
	default:
		out.ReviewRequired = true
		zap.L().Debug("unparseable resolver output",
			zap.String("record_id", rec.ID),
			zap.Int("bytes", len(resp.Text)))
	}
	return out
}

func promptContext(rec model.PersonRecord) recordContext {
	return recordContext{
		FullName:     rec.FullName,
		TitleInput:   rec.TitleInput,
		TitleNew:     rec.TitleNew,
		CompanyInput: rec.CompanyInput,
		CompanyNew:   rec.CompanyNew,
	}
}
