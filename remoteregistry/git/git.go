package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/skosovsky/promptkit/remoteregistry"
)

var (
	_ remoteregistry.Fetcher = (*Fetcher)(nil)
	_ remoteregistry.Lister  = (*Fetcher)(nil)
)

// Fetcher fetches YAML manifests from a Git repository (clone on first use, then pull).
// Call Close to remove a temporary clone.
type Fetcher struct {
	repoURL   string
	branch    string
	dir       string
	depth     int
	authToken string
	cloneDir  string
	logger    *zap.Logger

	mu       sync.Mutex
	localDir string
	repo     *git.Repository
}

// NewFetcher creates a Fetcher. Repo is cloned on first Fetch.
// Returns error if repoURL or the branch is empty.
func NewFetcher(repoURL string, opts ...Option) (*Fetcher, error) {
	if strings.TrimSpace(repoURL) == "" {
		return nil, errors.New("remoteregistry/git: repo URL must not be empty")
	}
	g := &Fetcher{
		repoURL: repoURL,
		branch:  "main",
		depth:   1,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if strings.TrimSpace(g.branch) == "" {
		return nil, errors.New("remoteregistry/git: branch must not be empty")
	}
	return g, nil
}

// Fetch reads the manifest from the repo: {dir}/{name}.yaml or {dir}/{name}.yml.
func (g *Fetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := remoteregistry.ValidateName(name); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureClone(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", remoteregistry.ErrFetchFailed, err)
	}
	baseDir := g.baseDir()
	for _, rel := range remoteregistry.CandidatePaths(name) {
		cleanPath := filepath.Join(baseDir, filepath.FromSlash(rel))
		relPath, relErr := filepath.Rel(baseDir, cleanPath)
		if relErr != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
			continue
		}
		data, err := os.ReadFile(cleanPath) // #nosec G304 -- cleanPath is validated via filepath.Rel to prevent path traversal
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: read %s: %w", remoteregistry.ErrFetchFailed, rel, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", remoteregistry.ErrNotFound, name)
}

// ListNames returns the names of all manifests under the configured directory,
// slash-separated and sorted.
func (g *Fetcher) ListNames(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureClone(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", remoteregistry.ErrFetchFailed, err)
	}
	baseDir := g.baseDir()
	var names []string
	err := filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, ext)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", remoteregistry.ErrFetchFailed, err)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Revision returns the commit hash of the checked-out HEAD.
func (g *Fetcher) Revision(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureClone(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", remoteregistry.ErrFetchFailed, err)
	}
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("%w: head: %w", remoteregistry.ErrFetchFailed, err)
	}
	return head.Hash().String(), nil
}

func (g *Fetcher) baseDir() string {
	return filepath.Clean(filepath.Join(g.localDir, filepath.FromSlash(g.dir)))
}

func (g *Fetcher) auth() *http.BasicAuth {
	if g.authToken == "" {
		return nil
	}
	return &http.BasicAuth{Username: "x-access-token", Password: g.authToken}
}

func (g *Fetcher) ensureClone(ctx context.Context) error {
	if g.repo != nil {
		g.pull(ctx)
		return nil
	}
	if g.cloneDir != "" {
		if repo, err := git.PlainOpen(g.cloneDir); err == nil {
			g.localDir, g.repo = g.cloneDir, repo
			g.pull(ctx)
			return nil
		}
	}
	dir := g.cloneDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "promptkit-git-*")
		if err != nil {
			return fmt.Errorf("temp dir: %w", err)
		}
		dir = tmp
	}
	cloneOpts := &git.CloneOptions{
		URL:           g.repoURL,
		ReferenceName: plumbing.NewBranchReferenceName(g.branch),
		SingleBranch:  true,
	}
	if g.depth > 0 {
		cloneOpts.Depth = g.depth
	}
	if auth := g.auth(); auth != nil {
		cloneOpts.Auth = auth
	}
	repo, err := git.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		if g.cloneDir == "" {
			_ = os.RemoveAll(dir)
		}
		return fmt.Errorf("clone: %w", err)
	}
	g.localDir, g.repo = dir, repo
	g.logger.Debug("prompt repository cloned", zap.String("repo", g.repoURL), zap.String("branch", g.branch))
	return nil
}

// pull refreshes the working tree. file:// remotes are read in place and not pulled.
// Failures keep the existing tree, so a flaky remote serves stale manifests.
func (g *Fetcher) pull(ctx context.Context) {
	if strings.HasPrefix(g.repoURL, "file://") {
		return
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		g.logger.Warn("git worktree unavailable, using cached clone", zap.Error(err))
		return
	}
	pullOpts := &git.PullOptions{
		ReferenceName: plumbing.NewBranchReferenceName(g.branch),
		SingleBranch:  true,
	}
	if auth := g.auth(); auth != nil {
		pullOpts.Auth = auth
	}
	if err := wt.PullContext(ctx, pullOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		g.logger.Warn("git pull failed, using cached clone", zap.String("repo", g.repoURL), zap.Error(err))
	}
}

// Close removes a temporary clone. A directory set with WithCloneDir is kept.
// Safe to call multiple times; a later Fetch clones again.
func (g *Fetcher) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.localDir == "" {
		return nil
	}
	dir := g.localDir
	g.localDir = ""
	g.repo = nil
	if dir == g.cloneDir {
		return nil
	}
	return os.RemoveAll(dir)
}
