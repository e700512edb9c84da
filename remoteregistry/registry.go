package remoteregistry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/manifest"
)

const defaultTTL = 5 * time.Minute

// detachCancel returns a context that is not cancelled when parent is cancelled,
// but still respects parent's deadline so fetches (e.g. git clone) do not hang.
// A shared fetch must not fail for every waiter because the first caller gave up.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// Loader fetches manifests via a Fetcher and keeps them registered in a Registry.
type Loader struct {
	fetcher Fetcher
	reg     *promptkit.Registry
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time // names this Loader registered; zero time never expires
	sf      singleflight.Group
}

// New returns a Loader that registers fetched prompts into reg.
// Panics if fetcher or reg is nil.
func New(fetcher Fetcher, reg *promptkit.Registry, opts ...Option) *Loader {
	if fetcher == nil {
		panic("remoteregistry: Fetcher must not be nil")
	}
	if reg == nil {
		panic("remoteregistry: Registry must not be nil")
	}
	l := &Loader{
		fetcher: fetcher,
		reg:     reg,
		ttl:     defaultTTL,
		logger:  zap.NewNop(),
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the registry the Loader writes to.
func (l *Loader) Registry() *promptkit.Registry { return l.reg }

func (l *Loader) fresh(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.expires[name]
	return ok && (exp.IsZero() || l.now().Before(exp))
}

// Get returns the template for name, fetching it when it is not cached or its TTL expired.
// A failed refresh of a previously fetched template logs a warning and serves the cached copy,
// except when the source reports the prompt gone: it is then unregistered.
func (l *Loader) Get(ctx context.Context, name string) (promptkit.PromptTemplate, error) {
	if err := ValidateName(name); err != nil {
		return promptkit.PromptTemplate{}, err
	}
	if l.fresh(name) {
		if t, err := l.reg.Get(name); err == nil {
			return t, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return promptkit.PromptTemplate{}, err
	}

	_, err, _ := l.sf.Do(name, func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		return nil, l.fetch(fetchCtx, name)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.forget(name)
			return promptkit.PromptTemplate{}, fmt.Errorf("%w: %w", err, &promptkit.NotFoundError{Kind: "prompt", Name: name})
		}
		l.mu.Lock()
		_, owned := l.expires[name]
		l.mu.Unlock()
		if owned {
			if t, getErr := l.reg.Get(name); getErr == nil {
				l.logger.Warn("remote refresh failed, serving cached prompt", zap.String("prompt", name), zap.Error(err))
				return t, nil
			}
		}
		return promptkit.PromptTemplate{}, err
	}
	return l.reg.Get(name)
}

func (l *Loader) fetch(ctx context.Context, name string) error {
	data, err := l.fetcher.Fetch(ctx, name)
	if err != nil {
		return err
	}
	tpl, err := manifest.ParseBytes(data)
	if err != nil {
		return err
	}
	if tpl.Name != name {
		return fmt.Errorf("%w: requested %q, manifest declares %q", ErrNameMismatch, name, tpl.Name)
	}
	if err := l.reg.Sync([]promptkit.PromptTemplate{tpl}, nil); err != nil {
		return err
	}
	l.mu.Lock()
	l.expires[name] = l.expiry()
	l.mu.Unlock()
	l.logger.Debug("prompt fetched", zap.String("prompt", name))
	return nil
}

func (l *Loader) expiry() time.Time {
	if l.ttl <= 0 {
		return time.Time{}
	}
	return l.now().Add(l.ttl)
}

func (l *Loader) forget(name string) {
	l.mu.Lock()
	_, owned := l.expires[name]
	delete(l.expires, name)
	l.mu.Unlock()
	if owned {
		l.reg.Unregister(name)
	}
}

// LoadAll fetches every prompt the Fetcher lists, registers them in one batch and
// unregisters prompts from earlier loads that are no longer listed. It needs a
// Fetcher implementing Lister; on error the registry is left unchanged.
func (l *Loader) LoadAll(ctx context.Context) ([]string, error) {
	lister, ok := l.fetcher.(Lister)
	if !ok {
		return nil, ErrNoLister
	}
	names, err := lister.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	names = slices.Compact(names)
	tpls := make([]promptkit.PromptTemplate, 0, len(names))
	for _, name := range names {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		data, err := l.fetcher.Fetch(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("remoteregistry: %s: %w", name, err)
		}
		tpl, err := manifest.ParseBytes(data)
		if err != nil {
			return nil, fmt.Errorf("remoteregistry: %s: %w", name, err)
		}
		if tpl.Name != name {
			return nil, fmt.Errorf("%w: requested %q, manifest declares %q", ErrNameMismatch, name, tpl.Name)
		}
		tpls = append(tpls, tpl)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	listed := make(map[string]struct{}, len(names))
	for _, name := range names {
		listed[name] = struct{}{}
	}
	var gone []string
	for name := range l.expires {
		if _, ok := listed[name]; !ok {
			gone = append(gone, name)
		}
	}
	slices.Sort(gone)
	if err := l.reg.Sync(tpls, gone); err != nil {
		return nil, err
	}
	exp := l.expiry()
	l.expires = make(map[string]time.Time, len(names))
	for _, name := range names {
		l.expires[name] = exp
	}
	return names, nil
}

// Evict marks name stale so the next Get refetches it. The registered template stays
// in place until then.
func (l *Loader) Evict(name string) {
	l.mu.Lock()
	if _, ok := l.expires[name]; ok {
		l.expires[name] = time.Unix(0, 0)
	}
	l.mu.Unlock()
}

// EvictAll marks every fetched prompt stale.
func (l *Loader) EvictAll() {
	l.mu.Lock()
	for name := range l.expires {
		l.expires[name] = time.Unix(0, 0)
	}
	l.mu.Unlock()
}

// Close calls Close on the underlying Fetcher if it implements the interface.
// Use this to clean up resources (e.g. git.Fetcher removes the local clone).
func (l *Loader) Close() error {
	if c, ok := l.fetcher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
