package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/modrun/internal/ctxlog"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	defer a.Close()

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer(ctx)
		defer a.closeHealthCheckServer(ctx)
	}

	a.logger.Info("🚀 Importing entries...", "environments", a.Environments())
	if err := a.ImportEntries(ctx); err != nil {
		if !a.config.Watch {
			return err
		}
		a.logger.Error("Initial import failed, waiting for changes.", "error", err)
	}

	if !a.config.Watch {
		a.logger.Info("🏁 Execution finished.")
		return nil
	}

	for _, env := range a.environments {
		if err := env.start(ctx); err != nil {
			return fmt.Errorf("environment %q: starting hmr: %w", env.name, err)
		}
	}
	a.logger.Info("👀 Watching for changes. Press Ctrl+C to stop.")
	<-ctx.Done()
	a.logger.Info("Shutting down.")
	return nil
}

// ImportEntries imports the entries of every environment concurrently and
// prints one result line per entry, in configuration order.
func (a *App) ImportEntries(ctx context.Context) error {
	type job struct {
		env *environment
		url string
	}
	var jobs []job
	for _, env := range a.environments {
		if len(env.settings.Entries) == 0 {
			env.logger.Warn("No entries configured.")
		}
		for _, url := range env.settings.Entries {
			jobs = append(jobs, job{env, url})
		}
	}

	results := make([]*result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			ns, err := j.env.runner.Import(gctx, j.url)
			if err != nil {
				return fmt.Errorf("environment %q: import %s: %w", j.env.name, j.url, err)
			}
			res, err := newResult(j.env.name, j.url, ns)
			if err != nil {
				return err
			}
			results[i] = res
			j.env.logger.Debug("Entry imported.", "url", j.url)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return a.writeResults(results)
}
