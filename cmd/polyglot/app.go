package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"polyglot/internal/config"
	"polyglot/internal/container"
	"polyglot/internal/harness"
	"polyglot/internal/project"
	"polyglot/internal/source"
)

// app holds what every command needs: configuration, catalog and locator.
type app struct {
	cfg     *config.Config
	catalog *project.Catalog
	locator *source.Locator
}

func loadApp() (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		start := workspace
		if start == "" {
			if start, err = os.Getwd(); err != nil {
				return nil, err
			}
		}
		cfg, err = config.Discover(start)
	}
	if err != nil {
		return nil, err
	}

	catalog, err := project.New(cfg)
	if err != nil {
		return nil, err
	}
	locator, err := source.NewLocator(catalog, cfg.Settings.Ignore)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, catalog: catalog, locator: locator}, nil
}

func (a *app) harness(c harness.Containers, out io.Writer) *harness.Harness {
	return &harness.Harness{
		Catalog:    a.catalog,
		Locator:    a.locator,
		Containers: c,
		Root:       a.cfg.SourceRoot(),
		Out:        out,
		Prompter:   harness.NewPrompter(os.Stdin, out),
	}
}

// withManager runs fn with a container manager and releases every container
// it acquired afterwards, including after an interrupt.
func (a *app) withManager(ctx context.Context, fn func(*container.Manager) error) error {
	engine, err := container.NewEngine(ctx, a.cfg.Settings.Container.Engine)
	if err != nil {
		return err
	}
	mgr := container.NewManager(engine, container.ManagerConfigFrom(a.cfg.Settings.Container))
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Warn("closing container engine", zap.Error(err))
		}
	}()

	runErr := fn(mgr)

	if mgr.Active() > 0 {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		logger.Info("releasing containers", zap.Int("count", mgr.Active()))
		if err := mgr.ReleaseAll(cleanupCtx); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}

// commandContext returns a context cancelled on SIGINT/SIGTERM and, when
// --timeout is set, at the deadline.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}
