// Package identity resolves scanned or typed identifiers to canonical household
// tokens and ration card numbers.
//
// Field workers enter identifiers in whatever shape is printed or remembered:
// "0042", "r0042", " R-0042 ". The resolver derives an ordered list of
// candidates (see Candidates) and returns the first one the lookup knows.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/retry"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

// Lookup finds a record by its canonical key. Implementations return
// sentinel.ErrNotFound when the key is unknown.
type Lookup[T any] interface {
	Find(ctx context.Context, key string) (T, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc[T any] func(ctx context.Context, key string) (T, error)

func (f LookupFunc[T]) Find(ctx context.Context, key string) (T, error) {
	return f(ctx, key)
}

// Resolution describes how an input was matched.
type Resolution struct {
	Input   string  `json:"input"`
	Matched string  `json:"matched"`
	Variant Variant `json:"variant"`
}

// Resolver resolves raw identifiers against a Lookup.
type Resolver[T any] struct {
	lookup   Lookup[T]
	target   string
	prefixes []string
	retry    *retry.Policy
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

type options struct {
	target   string
	prefixes []string
	retry    *retry.Policy
	metrics  *Metrics
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*options)

// WithTarget labels metrics and spans ("household", "ration_card").
func WithTarget(target string) Option {
	return func(o *options) { o.target = target }
}

// WithPrefixes replaces DefaultPrefixes.
func WithPrefixes(prefixes ...string) Option {
	return func(o *options) { o.prefixes = prefixes }
}

// WithRetry retries transient lookup failures. Not-found and validation
// outcomes are never retried.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.retry = &p }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewResolver builds a resolver over lookup.
func NewResolver[T any](lookup Lookup[T], opts ...Option) *Resolver[T] {
	o := options{target: "identity", prefixes: DefaultPrefixes}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Resolver[T]{
		lookup:   lookup,
		target:   o.target,
		prefixes: o.prefixes,
		retry:    o.retry,
		metrics:  o.metrics,
		logger:   o.logger,
		tracer:   otel.Tracer("aidtrack/identity"),
	}
}

// Resolve returns the record for raw along with the candidate that matched.
// Exact matches always win over rewritten candidates.
func (r *Resolver[T]) Resolve(ctx context.Context, raw string) (T, Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "identity.Resolve", trace.WithAttributes(
		attribute.String("identity.target", r.target),
	))
	defer span.End()

	var zero T
	res := Resolution{Input: raw}

	candidates := Candidates(raw, r.prefixes)
	if len(candidates) == 0 {
		r.metrics.observe(r.target, "invalid")
		return zero, res, dErrors.New(dErrors.CodeValidation, "identifier is required")
	}

	var (
		found T
		hit   Candidate
	)
	attempt := func(ctx context.Context) error {
		for _, c := range candidates {
			rec, err := r.lookup.Find(ctx, c.Value)
			if err == nil {
				found, hit = rec, c
				return nil
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return err
		}
		return sentinel.ErrNotFound
	}

	var err error
	if r.retry != nil {
		policy := *r.retry
		policy.Retryable = isTransient
		err = policy.Do(ctx, attempt)
	} else {
		err = attempt(ctx)
	}

	switch {
	case err == nil:
		res.Matched, res.Variant = hit.Value, hit.Variant
		span.SetAttributes(attribute.String("identity.variant", string(hit.Variant)))
		r.metrics.observe(r.target, string(hit.Variant))
		return found, res, nil
	case errors.Is(err, sentinel.ErrNotFound):
		r.metrics.observe(r.target, "not_found")
		return zero, res, dErrors.Wrap(err, dErrors.CodeNotFound, r.target+" not found")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		r.metrics.observe(r.target, "error")
		r.logger.ErrorContext(ctx, "identifier lookup failed",
			"target", r.target,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, res, dErrors.Wrap(err, dErrors.CodeTimeout, "identifier lookup timed out")
		}
		return zero, res, dErrors.Wrap(err, dErrors.CodeInternal, "identifier lookup failed")
	}
}

func isTransient(err error) bool {
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if de, ok := dErrors.As(err); ok {
		return de.Code == dErrors.CodeUnavailable || de.Code == dErrors.CodeInternal
	}
	return true
}
