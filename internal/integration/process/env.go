package process

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// BuildEnv returns the child environment: base with pathDirs prepended to
// PATH, then dotenv files, then explicit vars. Later sources win.
// Relative env files are resolved against dir.
func BuildEnv(base []string, pathDirs []string, dir string, envFiles []string, vars map[string]string) ([]string, error) {
	env := make(map[string]string, len(base)+len(vars))
	order := make([]string, 0, len(base)+len(vars))
	set := func(k, v string) {
		if _, ok := env[k]; !ok {
			order = append(order, k)
		}
		env[k] = v
	}

	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		set(k, v)
	}

	set("PATH", PrependPath(env["PATH"], pathDirs))

	if len(envFiles) > 0 {
		files := make([]string, 0, len(envFiles))
		for _, f := range envFiles {
			if dir != "" && !filepath.IsAbs(f) {
				f = filepath.Join(dir, f)
			}
			files = append(files, f)
		}
		loaded, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("read env files: %w", err)
		}
		keys := make([]string, 0, len(loaded))
		for k := range loaded {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			set(k, loaded[k])
		}
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, vars[k])
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+env[k])
	}
	return out, nil
}

// PrependPath puts dirs in front of path, dropping duplicates while keeping
// the first occurrence.
func PrependPath(path string, dirs []string) string {
	sep := string(os.PathListSeparator)
	seen := make(map[string]bool)
	parts := make([]string, 0, len(dirs)+8)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		parts = append(parts, p)
	}
	for _, d := range dirs {
		add(d)
	}
	for _, p := range strings.Split(path, sep) {
		add(p)
	}
	return strings.Join(parts, sep)
}
