package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-organizer/internal/common"
	"github.com/joseph-ayodele/invoice-organizer/internal/retry"
)

// Extractor implements FieldExtractor on top of any Completer, adding
// per-attempt timeouts, retry with backoff and response validation.
type Extractor struct {
	completer Completer
	policy    retry.Policy
	timeout   time.Duration
	logger    *slog.Logger
	observe   func(provider, result string)
	cache     ResponseCache
}

type Option func(*Extractor)

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithAttemptObserver is called once per model call with result "ok" or "error".
func WithAttemptObserver(fn func(provider, result string)) Option {
	return func(e *Extractor) { e.observe = fn }
}

// WithCache reuses earlier model output for the same content, provider, model and prompt.
func WithCache(c ResponseCache) Option {
	return func(e *Extractor) { e.cache = c }
}

func NewExtractor(c Completer, policy retry.Policy, opts ...Option) *Extractor {
	e := &Extractor{
		completer: c,
		policy:    policy,
		timeout:   60 * time.Second,
		logger:    slog.Default(),
		observe:   func(string, string) {},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Key identifies provider, model and prompt version.
func (e *Extractor) Key() string {
	return e.completer.Name() + ":" + e.completer.Model() + ":" + PromptVersion
}

// ExtractFields implements FieldExtractor.
func (e *Extractor) ExtractFields(ctx context.Context, req ExtractRequest) (RawFields, []byte, error) {
	start := time.Now()
	provider := e.completer.Name()
	log := e.logger.With("provider", provider, "model", e.completer.Model(), "id", common.RecordIDFromContext(ctx))

	cacheKey := ""
	if e.cache != nil && req.ContentID != "" {
		cacheKey = req.ContentID + "|" + e.Key()
		if fields, raw, ok := e.fromCache(ctx, log, cacheKey); ok {
			return fields, raw, nil
		}
	}

	log.Info("llm.extract.start", "text_len", len(req.Text), "filename", req.FilenameHint)

	creq := CompletionRequest{
		System: BuildSystemPrompt(req),
		User:   BuildUserPrompt(req),
		Schema: BuildInvoiceJSONSchema(),
	}

	res := retry.Do(ctx, e.policy, log, "llm.extract", func(ctx context.Context, attempt int) (string, error) {
		actx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		out, err := e.completer.Complete(actx, creq)
		if err != nil {
			e.observe(provider, "error")
			if !Retryable(err) {
				return "", retry.Permanent(err)
			}
			return "", err
		}
		e.observe(provider, "ok")
		return out, nil
	})
	if !res.OK() {
		return RawFields{}, nil, common.NewAppError(common.CodeExtractionFailed,
			fmt.Sprintf("model call failed after %d attempt(s)", res.Attempts), res.Err)
	}

	fields, raw, err := ParseResponse(res.Value, log)
	if err != nil {
		return RawFields{}, raw, err
	}
	if cacheKey != "" {
		if err := e.cache.Put(ctx, cacheKey, res.Value); err != nil {
			log.Warn("llm.cache.put_failed", "error", err)
		}
	}

	log.Info("llm.extract.ok",
		"attempts", res.Attempts,
		"sender", fields.Sender,
		"date", fields.Date,
		"amount", fields.Amount,
		"currency", fields.Currency,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, raw, nil
}

func (e *Extractor) fromCache(ctx context.Context, log *slog.Logger, key string) (RawFields, []byte, bool) {
	content, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		log.Warn("llm.cache.get_failed", "error", err)
		return RawFields{}, nil, false
	}
	if !ok {
		return RawFields{}, nil, false
	}
	fields, raw, err := ParseResponse(content, log)
	if err != nil {
		log.Warn("llm.cache.unusable", "error", err)
		return RawFields{}, nil, false
	}
	log.Info("llm.extract.cached", "sender", fields.Sender)
	return fields, raw, true
}
