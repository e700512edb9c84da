package promptkit

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures an Engine (functional options pattern).
type Option func(*Engine)

// WithLogger sets the engine logger. Default is zap.NewNop().
// A registry created by NewEngine inherits it.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for execution spans. Default is a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}
