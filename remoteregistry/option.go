package remoteregistry

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Loader (functional options pattern).
type Option func(*Loader)

// WithTTL sets how long a fetched template is served before it is refetched.
// Default is 5 minutes. TTL <= 0 means entries never expire.
func WithTTL(d time.Duration) Option {
	return func(l *Loader) {
		l.ttl = d
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}
