package fileregistry

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/manifest"
)

// Loader reads manifests from a file system and keeps a Registry in sync with them.
type Loader struct {
	fsys   fs.FS
	root   string
	env    string
	logger *zap.Logger

	mu    sync.Mutex
	owned map[string]struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithRoot limits loading to the subtree at root (slash-separated, default ".").
func WithRoot(root string) Option {
	return func(l *Loader) { l.root = root }
}

// WithEnv selects the environment overlay ({stem}.{env}.yaml) to apply.
func WithEnv(env string) Option {
	return func(l *Loader) { l.env = env }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// New returns a Loader over fsys.
func New(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{fsys: fsys, root: ".", logger: zap.NewNop(), owned: map[string]struct{}{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewDir returns a Loader over the directory dir.
func NewDir(dir string, opts ...Option) *Loader {
	return New(os.DirFS(dir), opts...)
}

// source is a parsed template and the file it came from.
type source struct {
	tpl     promptkit.PromptTemplate
	path    string
	overlay bool
}

// Templates parses every manifest and returns the resolved templates sorted by name.
func (l *Loader) Templates(ctx context.Context) ([]promptkit.PromptTemplate, error) {
	files, err := l.files(ctx)
	if err != nil {
		return nil, err
	}
	resolved := make(map[string]source)
	for _, p := range slices.Sorted(maps.Keys(files)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		env, overlay := overlayEnv(p, files)
		if overlay && env != l.env {
			continue
		}
		data, err := fs.ReadFile(l.fsys, p)
		if err != nil {
			return nil, fmt.Errorf("fileregistry: read %s: %w", p, err)
		}
		tpls, err := manifest.ParseAll(data)
		if err != nil {
			return nil, fmt.Errorf("fileregistry: %s: %w", p, err)
		}
		for _, t := range tpls {
			prev, seen := resolved[t.Name]
			switch {
			case !seen, overlay && !prev.overlay:
				resolved[t.Name] = source{tpl: t, path: p, overlay: overlay}
			case prev.overlay && !overlay:
				// Overlay already won.
			default:
				return nil, fmt.Errorf("%w: %q in %s and %s", promptkit.ErrDuplicatePrompt, t.Name, prev.path, p)
			}
		}
	}
	out := make([]promptkit.PromptTemplate, 0, len(resolved))
	for _, name := range slices.Sorted(maps.Keys(resolved)) {
		out = append(out, resolved[name].tpl)
	}
	return out, nil
}

// Load registers the current manifests into reg and unregisters prompts from an
// earlier Load whose manifests disappeared. On error reg is left unchanged.
func (l *Loader) Load(ctx context.Context, reg *promptkit.Registry) ([]string, error) {
	tpls, err := l.Templates(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tpls))
	current := make(map[string]struct{}, len(tpls))
	for _, t := range tpls {
		names = append(names, t.Name)
		current[t.Name] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var gone []string
	for name := range l.owned {
		if _, ok := current[name]; !ok {
			gone = append(gone, name)
		}
	}
	slices.Sort(gone)
	if err := reg.Sync(tpls, gone); err != nil {
		return nil, err
	}
	l.owned = current
	l.logger.Debug("manifests loaded", zap.Int("prompts", len(names)), zap.Int("removed", len(gone)))
	return names, nil
}

// DefaultWatchInterval is the Watch interval used when the caller passes interval <= 0.
const DefaultWatchInterval = 5 * time.Second

// Watch calls Load every interval until ctx is done. Failed loads are logged and
// leave the registry as it was. An interval <= 0 means DefaultWatchInterval.
// It returns ctx.Err().
func (l *Loader) Watch(ctx context.Context, reg *promptkit.Registry, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := l.Load(ctx, reg); err != nil && ctx.Err() == nil {
				l.logger.Warn("manifest reload failed", zap.Error(err))
			}
		}
	}
}

func (l *Loader) files(ctx context.Context) (map[string]struct{}, error) {
	files := make(map[string]struct{})
	err := fs.WalkDir(l.fsys, l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && isManifest(p) {
			files[p] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fileregistry: walk %s: %w", l.root, err)
	}
	return files, nil
}

func isManifest(p string) bool {
	ext := path.Ext(p)
	return ext == ".yaml" || ext == ".yml"
}

// overlayEnv reports whether p is {stem}.{env}.yaml with a base {stem}.yaml or
// {stem}.yml in the same directory, and returns env.
func overlayEnv(p string, files map[string]struct{}) (string, bool) {
	stem := strings.TrimSuffix(p, path.Ext(p))
	idx := strings.LastIndex(stem, ".")
	if idx <= strings.LastIndex(stem, "/")+1 {
		return "", false
	}
	base := stem[:idx]
	for _, ext := range []string{".yaml", ".yml"} {
		if _, ok := files[base+ext]; ok {
			return stem[idx+1:], true
		}
	}
	return "", false
}
