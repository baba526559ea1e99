package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/devpilot/internal/app"
	"github.com/dshills/devpilot/internal/config"
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	debug      bool
}

func (g *globalOptions) overrides() map[string]any {
	o := map[string]any{}
	if g.logLevel != "" {
		o["log_level"] = g.logLevel
	}
	if g.debug {
		o["log_level"] = "debug"
	}
	return o
}

// load reads the configuration with extra overrides from a command.
func (g *globalOptions) load(extra map[string]any) (*config.Config, string, error) {
	o := g.overrides()
	for k, v := range extra {
		o[k] = v
	}
	return config.Load(config.Options{Path: g.configPath, Overrides: o})
}

func (g *globalOptions) logger(cfg *config.Config) zerolog.Logger {
	return app.InitLogging(cfg.LogLevel, os.Stderr)
}

// NewRootCmd builds the devpilot command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:           "devpilot",
		Short:         "Supervise mobile dev tools and browse their classified logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/devpilot/config.toml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "diagnostic log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "shorthand for --log-level=debug")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newDoctorCmd(g))
	root.AddCommand(newProfilesCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newVersionCmd())

	return root
}
