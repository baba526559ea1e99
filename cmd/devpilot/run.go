package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dshills/devpilot/internal/app"
	"github.com/dshills/devpilot/internal/console"
	"github.com/dshills/devpilot/internal/integration/output"
	"github.com/dshills/devpilot/internal/integration/process"
)

type runOptions struct {
	dir        string
	export     string
	tui        bool
	plain      bool
	watch      bool
	noWatch    bool
	grace      time.Duration
	maxEntries int
	level      string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [profile] [-- tool args...]",
		Short: "Launch a tool profile and follow its log",
		Long: `Launch a tool profile and follow its classified log.

Arguments after -- replace the profile's own arguments:

  devpilot run flutter -- run -d ios --flavor dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var profile string
			var toolArgs []string
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				toolArgs = args[dash:]
				args = args[:dash]
			}
			if len(args) > 1 {
				return fmt.Errorf("expected at most one profile, got %d", len(args))
			}
			if len(args) == 1 {
				profile = args[0]
			}
			return o.run(cmd.Context(), g, profile, toolArgs, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.dir, "dir", "C", ".", "project directory to run in")
	f.StringVar(&o.export, "export", "", "write the log to this file on exit")
	f.BoolVar(&o.tui, "tui", false, "interactive console (default when stdout is a terminal)")
	f.BoolVar(&o.plain, "plain", false, "print records as plain lines")
	f.BoolVar(&o.watch, "watch", false, "hot reload when watched sources change")
	f.BoolVar(&o.noWatch, "no-watch", false, "disable source watching")
	f.DurationVar(&o.grace, "grace", 0, "how long to wait for a graceful quit")
	f.IntVar(&o.maxEntries, "max-entries", 0, "log buffer capacity")
	f.StringVar(&o.level, "level", "all", "plain mode level filter (all, error, warning, info, debug)")
	cmd.MarkFlagsMutuallyExclusive("tui", "plain")
	cmd.MarkFlagsMutuallyExclusive("watch", "no-watch")
	return cmd
}

func (o *runOptions) overrides() map[string]any {
	m := map[string]any{}
	if o.watch {
		m["watch.enabled"] = true
	}
	if o.noWatch {
		m["watch.enabled"] = false
	}
	if o.grace > 0 {
		m["grace_period"] = o.grace.String()
	}
	if o.maxEntries > 0 {
		m["max_entries"] = o.maxEntries
	}
	return m
}

func (o *runOptions) run(ctx context.Context, g *globalOptions, profile string, toolArgs []string, cmd *cobra.Command) error {
	cfg, cfgPath, err := g.load(o.overrides())
	if err != nil {
		return err
	}

	useTUI := o.tui || (!o.plain && isatty.IsTerminal(os.Stdout.Fd()))

	var logOut io.Writer = os.Stderr
	if useTUI {
		f, err := app.OpenLogFile()
		if err != nil {
			logOut = io.Discard
		} else {
			defer f.Close()
			logOut = f
		}
	}
	logger := app.InitLogging(cfg.LogLevel, logOut)
	if cfgPath != "" {
		logger.Debug().Str("path", cfgPath).Msg("loaded config")
	}

	a, err := app.New(cfg, app.Options{
		Profile:    profile,
		Dir:        o.dir,
		Args:       toolArgs,
		ExportPath: o.export,
		StayOpen:   useTUI,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var plain *plainView
	if useTUI {
		tui, err := console.NewTerminalTUI(a.Classifier(), a)
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		a.SetView(tui)
	} else {
		level, err := output.ParseLevel(o.level)
		if err != nil {
			return err
		}
		plain, err = newPlainView(cmd.OutOrStdout(), a.Classifier(), output.Filter{Level: level})
		if err != nil {
			return err
		}
		a.SetView(plain)
	}

	err = a.Run(ctx)
	if plain != nil {
		plain.wait(time.Second)
	}

	var notFound *process.CommandNotFoundError
	if errors.As(err, &notFound) {
		_, p, _ := cfg.Profile(profile)
		if p.InstallHint != "" {
			return fmt.Errorf("%w\nhint: %s", err, p.InstallHint)
		}
	}
	return err
}

// plainView prints records until the classifier closes its feed.
type plainView struct {
	printer *console.Printer
	changes <-chan output.Change
	done    chan struct{}
}

func newPlainView(w io.Writer, c *output.Classifier, f output.Filter) (*plainView, error) {
	changes, _, err := c.Subscribe(4096)
	if err != nil {
		return nil, err
	}
	return &plainView{
		printer: console.NewPrinter(w, f),
		changes: changes,
		done:    make(chan struct{}),
	}, nil
}

func (v *plainView) Run(context.Context) error {
	defer close(v.done)
	v.printer.Follow(v.changes)
	return nil
}

func (v *plainView) wait(d time.Duration) {
	select {
	case <-v.done:
	case <-time.After(d):
	}
}
