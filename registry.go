package promptkit

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// DuplicatePolicy decides what Register does with a name that is already taken.
type DuplicatePolicy int

const (
	// DuplicateOverwrite replaces the stored template and logs a warning.
	DuplicateOverwrite DuplicatePolicy = iota
	// DuplicateReject keeps the stored template and returns ErrDuplicatePrompt.
	DuplicateReject
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registration warnings.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDuplicatePolicy sets the re-registration policy. Default is DuplicateOverwrite.
func WithDuplicatePolicy(p DuplicatePolicy) RegistryOption {
	return func(r *Registry) { r.policy = p }
}

// Registry is a concurrency-safe name -> PromptTemplate store.
// Stored templates are never mutated: Register swaps in a fresh copy, so a
// concurrent Get sees either the old or the new template in full.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*PromptTemplate
	policy    DuplicatePolicy
	logger    *zap.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		templates: make(map[string]*PromptTemplate),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates t and stores a copy under t.Name.
func (r *Registry) Register(t PromptTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	stored := t.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.Name]; exists {
		if r.policy == DuplicateReject {
			return fmt.Errorf("%w: %q", ErrDuplicatePrompt, t.Name)
		}
		r.logger.Warn("prompt re-registered, previous template replaced", zap.String("prompt", t.Name))
	}
	r.templates[t.Name] = &stored
	return nil
}

// Get returns a copy of the template registered under name, or *NotFoundError.
func (r *Registry) Get(name string) (PromptTemplate, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return PromptTemplate{}, &NotFoundError{Kind: "prompt", Name: name}
	}
	return t.Clone(), nil
}

// List yields registered names in sorted order. Each call takes a fresh snapshot,
// so registrations made while iterating are not observed.
func (r *Registry) List() iter.Seq[string] {
	r.mu.RLock()
	names := slices.Sorted(maps.Keys(r.templates))
	r.mu.RUnlock()
	return slices.Values(names)
}

// Unregister removes name and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[name]; !ok {
		return false
	}
	delete(r.templates, name)
	return true
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Sync applies a batch from a loader in one critical section: every template in
// set is stored and every name in remove is dropped. Readers never observe a
// partially applied batch. Templates identical to the stored one are kept as is;
// changed ones replace the stored template regardless of the duplicate policy,
// since the caller owns those names. Nothing is applied if any template is invalid.
func (r *Registry) Sync(set []PromptTemplate, remove []string) error {
	stored := make([]*PromptTemplate, 0, len(set))
	for _, t := range set {
		if err := t.Validate(); err != nil {
			return err
		}
		c := t.Clone()
		stored = append(stored, &c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range stored {
		if old, ok := r.templates[t.Name]; ok {
			if old.equal(*t) {
				continue
			}
			r.logger.Info("prompt updated", zap.String("prompt", t.Name))
		}
		r.templates[t.Name] = t
	}
	for _, name := range remove {
		if _, ok := r.templates[name]; ok {
			delete(r.templates, name)
			r.logger.Info("prompt removed", zap.String("prompt", name))
		}
	}
	return nil
}
