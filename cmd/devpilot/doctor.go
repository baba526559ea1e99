package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/devpilot/internal/config"
	"github.com/dshills/devpilot/internal/integration/process"
)

const versionTimeout = 15 * time.Second

// checkResult is the outcome of checking one profile.
type checkResult struct {
	Profile string
	Path    string
	Version *semver.Version
	Raw     string
	Problem string
	Hint    string
}

func (r checkResult) ok() bool { return r.Problem == "" }

func newDoctorCmd(g *globalOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "doctor [profile...]",
		Short: "Check that tool executables are installed and recent enough",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(nil)
			if err != nil {
				return err
			}
			logger := g.logger(cfg)

			names := args
			if len(names) == 0 {
				names = cfg.ProfileNames()
			}

			failed := 0
			for _, name := range names {
				_, p, err := cfg.Profile(name)
				if err != nil {
					return err
				}
				res := checkProfile(cmd.Context(), cfg, name, p)
				logger.Debug().Str("profile", name).Str("path", res.Path).Str("raw", res.Raw).Msg("checked")
				printResult(cmd.OutOrStdout(), res)
				if !res.ok() {
					failed++
				}
			}
			// Checking every profile reports only; naming profiles or
			// --strict makes a problem fatal.
			if failed > 0 && (strict || len(args) > 0) {
				return fmt.Errorf("%d of %d profile checks failed", failed, len(names))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit nonzero if any profile check fails")
	return cmd
}

// checkProfile resolves p's executable, runs its version command and
// compares the result with MinVersion.
func checkProfile(ctx context.Context, cfg *config.Config, name string, p config.Profile) checkResult {
	res := checkResult{Profile: name, Hint: p.InstallHint}

	path, err := process.NewPathResolver(cfg.SearchDirs(p)...).Resolve(p.Executable)
	if err != nil {
		var nf *process.CommandNotFoundError
		if errors.As(err, &nf) {
			res.Problem = fmt.Sprintf("%s not found", p.Executable)
		} else {
			res.Problem = err.Error()
		}
		return res
	}
	res.Path = path

	if len(p.VersionArgs) == 0 {
		return res
	}

	vctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(vctx, path, p.VersionArgs...).CombinedOutput()
	res.Raw = strings.TrimSpace(string(out))
	if err != nil {
		res.Problem = fmt.Sprintf("%s failed: %v", shellescape.QuoteCommand(append([]string{path}, p.VersionArgs...)), err)
		return res
	}

	v, err := parseSemver(res.Raw)
	if err != nil {
		// Unparseable output is not a failure unless a minimum is required.
		if p.MinVersion != "" {
			res.Problem = fmt.Sprintf("cannot read version from %q", firstLine(res.Raw))
		}
		return res
	}
	res.Version = v

	if p.MinVersion != "" {
		constraint, err := semver.NewConstraint(p.MinVersion)
		if err != nil {
			res.Problem = fmt.Sprintf("bad min_version %q: %v", p.MinVersion, err)
			return res
		}
		if !constraint.Check(v) {
			res.Problem = fmt.Sprintf("version %s does not satisfy %s", v, p.MinVersion)
		}
	}
	return res
}

// parseSemver finds the first field of s that reads as a version.
func parseSemver(s string) (*semver.Version, error) {
	for _, f := range strings.Fields(s) {
		f = strings.TrimPrefix(strings.Trim(f, ",;()"), "v")
		if !strings.Contains(f, ".") {
			continue
		}
		if v, err := semver.NewVersion(f); err == nil {
			return v, nil
		}
	}
	return semver.NewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func printResult(w io.Writer, r checkResult) {
	r0 := lipgloss.NewRenderer(w)
	good := r0.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	bad := r0.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dim := r0.NewStyle().Faint(true)
	name := r0.NewStyle().Width(14)

	if r.ok() {
		ver := ""
		if r.Version != nil {
			ver = " " + r.Version.String()
		}
		fmt.Fprintf(w, "%s %s %s%s\n", good.Render("ok  "), name.Render(r.Profile), r.Path, ver)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", bad.Render("FAIL"), name.Render(r.Profile), r.Problem)
	if r.Hint != "" {
		fmt.Fprintf(w, "     %s %s\n", name.Render(""), dim.Render("hint: "+r.Hint))
	}
}
