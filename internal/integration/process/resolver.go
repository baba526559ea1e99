package process

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Resolver maps a logical tool name to an absolute executable path.
type Resolver interface {
	Resolve(tool string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(tool string) (string, error)

// Resolve calls f(tool).
func (f ResolverFunc) Resolve(tool string) (string, error) {
	return f(tool)
}

// PathResolver probes an ordered list of directories and falls back to a
// PATH lookup. It performs no writes and keeps no state between calls.
type PathResolver struct {
	// Dirs are probed in order before the PATH fallback.
	Dirs []string

	// LookPath is the PATH fallback. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)

	// IsExecutable reports whether path names an executable file.
	// Defaults to a stat of the mode bits.
	IsExecutable func(path string) bool
}

// NewPathResolver creates a resolver that probes extra before the default
// tool directories.
func NewPathResolver(extra ...string) *PathResolver {
	dirs := make([]string, 0, len(extra)+16)
	dirs = append(dirs, extra...)
	dirs = append(dirs, DefaultToolDirs()...)
	return &PathResolver{Dirs: dirs}
}

// Resolve returns the first executable candidate for tool.
// A tool given as a path (absolute or containing a separator) is checked
// directly and never searched for.
func (r *PathResolver) Resolve(tool string) (string, error) {
	if tool == "" {
		return "", &CommandNotFoundError{Tool: tool}
	}

	isExec := r.IsExecutable
	if isExec == nil {
		isExec = isExecutableFile
	}

	if filepath.IsAbs(tool) || filepath.Base(tool) != tool {
		if isExec(tool) {
			return tool, nil
		}
		return "", &CommandNotFoundError{Tool: tool}
	}

	searched := make([]string, 0, len(r.Dirs))
	for _, dir := range r.Dirs {
		if dir == "" {
			continue
		}
		for _, name := range executableNames(tool) {
			candidate := filepath.Join(dir, name)
			searched = append(searched, candidate)
			if isExec(candidate) {
				return candidate, nil
			}
		}
	}

	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if path, err := lookPath(tool); err == nil && path != "" {
		return path, nil
	}

	return "", &CommandNotFoundError{Tool: tool, Searched: searched}
}

// DefaultToolDirs returns the package-manager and SDK install directories
// where mobile toolchains usually live. Entries that depend on an unknown
// home directory are omitted.
func DefaultToolDirs() []string {
	dirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
		"/snap/bin",
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dirs
	}

	dirs = append(dirs,
		filepath.Join(home, "flutter", "bin"),
		filepath.Join(home, "development", "flutter", "bin"),
		filepath.Join(home, "fvm", "default", "bin"),
		filepath.Join(home, ".pub-cache", "bin"),
		filepath.Join(home, ".volta", "bin"),
		filepath.Join(home, ".npm-global", "bin"),
		filepath.Join(home, ".local", "bin"),
	)

	if sdk := os.Getenv("ANDROID_HOME"); sdk != "" {
		dirs = append(dirs, filepath.Join(sdk, "platform-tools"))
	}
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, filepath.Join(home, "Library", "Android", "sdk", "platform-tools"))
	} else {
		dirs = append(dirs, filepath.Join(home, "Android", "Sdk", "platform-tools"))
	}

	return dirs
}

func executableNames(tool string) []string {
	if runtime.GOOS != "windows" || filepath.Ext(tool) != "" {
		return []string{tool}
	}
	return []string{tool + ".exe", tool + ".bat", tool + ".cmd"}
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
