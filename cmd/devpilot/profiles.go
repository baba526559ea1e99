package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProfilesCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List tool profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load(nil)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROFILE\tCOMMAND\tPLATFORM\tRELOAD\tQUIT")
			for _, name := range cfg.ProfileNames() {
				p := cfg.Profiles[name]
				marker := ""
				if name == cfg.DefaultProfile {
					marker = "*"
				}
				var reload []string
				if p.HotReload {
					reload = append(reload, "reload")
				}
				if p.HotRestart {
					reload = append(reload, "restart")
				}
				quit := p.QuitToken
				if quit == "" {
					quit = "(kill)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%q\n",
					name, marker,
					shellescape.QuoteCommand(append([]string{p.Executable}, p.Args...)),
					p.Platform,
					strings.Join(reload, ","),
					quit,
				)
			}
			return tw.Flush()
		},
	}
}

func newConfigCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := g.load(nil)
			if err != nil {
				return err
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", path)
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "devpilot %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
