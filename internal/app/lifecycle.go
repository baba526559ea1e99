package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/devpilot/internal/event"
	"github.com/dshills/devpilot/internal/integration/process"
	"github.com/dshills/devpilot/internal/project/watcher"
)

// shutdownTimeout bounds draining the bus on Shutdown.
const shutdownTimeout = 2 * time.Second

// Start wires the feeds, starts the bus and the watcher, and launches the
// tool. A launch failure is returned after the failure notice has been
// recorded in the log.
func (a *Application) Start(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := a.bus.Start(); err != nil {
		return &ComponentError{Component: "bus", Action: "start", Err: err}
	}
	if err := a.wireFeeds(ctx); err != nil {
		return err
	}
	if a.cfg.Watch.Enabled {
		if err := a.startWatcher(ctx); err != nil {
			// Supervision still works without hot reload on save.
			a.logger.Warn().Err(err).Msg("source watcher disabled")
			a.classifier.System("File watching disabled: "+err.Error(), true)
		}
	}

	a.logger.Info().Str("dir", a.spec.Dir).Str("tool", a.spec.Tool).Msg("starting session")
	if err := a.supervisor.Start(a.spec); err != nil {
		return err
	}
	a.updateStatus()
	return nil
}

func (a *Application) startWatcher(ctx context.Context) error {
	w, err := watcher.NewFSNotifyWatcher(
		watcher.WithPatterns(a.cfg.Watch.Patterns...),
		watcher.WithIgnore(a.cfg.Watch.Ignore...),
		watcher.WithLogger(a.opts.Logger),
	)
	if err != nil {
		return &ComponentError{Component: "watcher", Action: "create", Err: err}
	}
	if err := w.WatchRecursive(a.spec.Dir); err != nil {
		_ = w.Close()
		return &ComponentError{Component: "watcher", Action: "watch " + a.spec.Dir, Err: err}
	}

	wctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.watch = w
	a.stopWatch = cancel
	a.mu.Unlock()

	go func() {
		defer close(a.watchDone)
		watcher.Run(wctx, w, a.cfg.Watch.Debounce, func(b watcher.Batch) {
			if err := a.bus.Publish(wctx, event.NewEvent(TopicFileChanged, b, "watcher")); err != nil {
				a.logger.Debug().Err(err).Msg("file change dropped")
			}
		}, func(err error) {
			a.logger.Debug().Err(err).Msg("watch error")
		})
	}()
	return nil
}

// Run starts the session, drives the attached view and shuts down when
// the view returns, ctx is done, or Quit is called. Without a view it
// waits for the tool to exit.
//
// The returned error is a launch failure, a view failure, or an
// *ExitError when the tool ended unsuccessfully.
func (a *Application) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		err = errors.Join(err, a.Shutdown())
	}()

	if err := a.Start(ctx); err != nil {
		return err
	}

	viewErr := make(chan error, 1)
	if v := a.currentView(); v != nil {
		go func() { viewErr <- v.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
	case <-a.quit:
	case err := <-viewErr:
		if err != nil {
			return err
		}
	}
	return a.exitResult()
}

// exitResult converts a failed supervisor into an ExitError.
func (a *Application) exitResult() error {
	if a.supervisor.State() != process.StateFailed {
		return nil
	}
	f := a.supervisor.Failure()
	if f == nil {
		return nil
	}
	code := 1
	if f.Kind == process.FailureExit && f.ExitCode > 0 {
		code = f.ExitCode
	}
	return &ExitError{Profile: a.profileName, Code: code, Detail: f.Detail}
}

// Quit ends the session. It is safe to call more than once.
func (a *Application) Quit() {
	a.requestQuit()
}

func (a *Application) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Done is closed when Quit has been requested.
func (a *Application) Done() <-chan struct{} {
	return a.quit
}

// Shutdown stops the tool, the watcher and the bus, then writes the export
// if one was requested. It is idempotent.
func (a *Application) Shutdown() error {
	a.shutOnce.Do(func() {
		a.requestQuit()

		a.mu.Lock()
		stopWatch, w := a.stopWatch, a.watch
		a.mu.Unlock()
		if stopWatch != nil {
			stopWatch()
			<-a.watchDone
			if err := w.Close(); err != nil {
				a.logger.Debug().Err(err).Msg("close watcher")
			}
		}

		a.supervisor.Stop()

		var errs []error
		if a.opts.ExportPath != "" {
			if err := a.exportTo(a.opts.ExportPath); err != nil {
				errs = append(errs, err)
			} else {
				a.logger.Info().Str("path", a.opts.ExportPath).Msg("log exported")
			}
		}

		for _, cancel := range a.cancels {
			cancel()
		}
		a.supervisor.Close()
		a.classifier.Close()
		a.forwarders.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.bus.IsRunning() {
			if err := a.bus.Stop(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("event bus did not drain")
			}
		}
		for _, sub := range a.subscriptions {
			_ = a.bus.Unsubscribe(sub)
		}

		if a.rule != nil {
			a.rule.Close()
		}
		a.running.Store(false)
		a.shutErr = errors.Join(errs...)
	})
	return a.shutErr
}

func (a *Application) exportTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ComponentError{Component: "export", Action: "create dir", Err: err}
	}
	if err := a.classifier.Export(path); err != nil {
		return &ComponentError{Component: "export", Action: fmt.Sprintf("write %s", path), Err: err}
	}
	return nil
}
