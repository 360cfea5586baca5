package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span wraps an otel span with the onEnd callbacks its Option list
// registered.
type Span struct {
	span  trace.Span
	onEnd []func()
}

// End runs any OnEnd callbacks, then ends the underlying span.
func (s *Span) End() {
	for _, f := range s.onEnd {
		f()
	}
	s.span.End()
}

// Error records err (if non-nil) and sets the span status to Error with msg.
func (s *Span) Error(err error, msg string) {
	if err != nil {
		s.span.RecordError(err)
	}
	s.span.SetStatus(codes.Error, msg)
}

// Event adds a named event with the given attributes.
func (s *Span) Event(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Set adds attributes to the span.
func (s *Span) Set(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

type spanConfig struct {
	attrs   []attribute.KeyValue
	onStart []func()
	onEnd   []func()
}

// Option configures a span started via StartWith.
type Option func(*spanConfig)

// Attrs sets the span's starting attributes.
func Attrs(attrs ...attribute.KeyValue) Option {
	return func(c *spanConfig) { c.attrs = append(c.attrs, attrs...) }
}

// OnStart registers a callback run right after the span starts.
func OnStart(f func()) Option {
	return func(c *spanConfig) { c.onStart = append(c.onStart, f) }
}

// OnEnd registers a callback run right before the span ends.
func OnEnd(f func()) Option {
	return func(c *spanConfig) { c.onEnd = append(c.onEnd, f) }
}

// Start begins a span named name with no options.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	return StartWith(ctx, name)
}

// StartWith begins a span named name, applying opts.
func StartWith(ctx context.Context, name string, opts ...Option) (context.Context, *Span) {
	var cfg spanConfig
	for _, o := range opts {
		o(&cfg)
	}

	ctx, span := currentTracer().Start(ctx, name, trace.WithAttributes(cfg.attrs...))
	for _, f := range cfg.onStart {
		f()
	}

	return ctx, &Span{span: span, onEnd: cfg.onEnd}
}
