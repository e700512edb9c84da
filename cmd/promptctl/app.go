package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/fileregistry"
	"github.com/skosovsky/promptkit/internal/config"
	"github.com/skosovsky/promptkit/internal/logger"
	"github.com/skosovsky/promptkit/internal/provider"
	"github.com/skosovsky/promptkit/remoteregistry"
	"github.com/skosovsky/promptkit/remoteregistry/git"
	"github.com/skosovsky/promptkit/secrets"
)

// deps are the process-level collaborators; zero fields get production defaults.
type deps struct {
	store  secrets.Store
	logger *zap.Logger
}

// app is the state a command builds from the config file.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  secrets.Store
	reg    *promptkit.Registry
	close  func() error
}

func newApp(ctx context.Context, path string, d deps) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := d.logger
	if log == nil {
		if log, err = logger.New(cfg.Log.Mode, cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	store := d.store
	if store == nil {
		store = secrets.NewEnv(config.EnvPrefix)
	}
	policy := promptkit.DuplicateOverwrite
	if cfg.Prompts.OnDuplicate == "reject" {
		policy = promptkit.DuplicateReject
	}
	a := &app{
		cfg:    cfg,
		logger: log,
		store:  store,
		reg:    promptkit.NewRegistry(promptkit.WithRegistryLogger(log), promptkit.WithDuplicatePolicy(policy)),
		close:  func() error { return nil },
	}
	if err := a.loadPrompts(ctx); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) loadPrompts(ctx context.Context) error {
	p := a.cfg.Prompts
	var (
		names []string
		err   error
	)
	switch {
	case p.Dir != "":
		loader := fileregistry.NewDir(p.Dir, fileregistry.WithEnv(a.cfg.Environment), fileregistry.WithLogger(a.logger))
		names, err = loader.Load(ctx, a.reg)
	case p.URL != "":
		fetcher, ferr := remoteregistry.NewHTTPFetcher(p.URL)
		if ferr != nil {
			return ferr
		}
		names, err = a.loadRemote(ctx, fetcher)
	default:
		opts := []git.Option{
			git.WithBranch(p.Git.Branch),
			git.WithDir(p.Git.Dir),
			git.WithDepth(p.Git.Depth),
			git.WithLogger(a.logger),
		}
		if p.Git.TokenKey != "" {
			token, terr := a.store.Get(ctx, p.Git.TokenKey)
			if terr != nil {
				return fmt.Errorf("git token: %w", terr)
			}
			opts = append(opts, git.WithAuth(token))
		}
		fetcher, ferr := git.NewFetcher(p.Git.Repo, opts...)
		if ferr != nil {
			return ferr
		}
		names, err = a.loadRemote(ctx, fetcher)
	}
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	a.logger.Debug("prompts loaded", zap.Int("count", len(names)))
	return nil
}

func (a *app) loadRemote(ctx context.Context, f remoteregistry.Fetcher) ([]string, error) {
	loader := remoteregistry.New(f, a.reg,
		remoteregistry.WithTTL(a.cfg.Prompts.TTL),
		remoteregistry.WithLogger(a.logger),
	)
	a.close = loader.Close
	return loader.LoadAll(ctx)
}

func (a *app) engine(ctx context.Context) (*promptkit.Engine, error) {
	providers, err := provider.Build(ctx, a.cfg.Providers, a.store, provider.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	return promptkit.NewEngine(promptkit.Config{Registry: a.reg, Providers: providers}, promptkit.WithLogger(a.logger))
}

func (a *app) shutdown() {
	if err := a.close(); err != nil {
		a.logger.Warn("close prompt source", zap.Error(err))
	}
	_ = a.logger.Sync()
}
