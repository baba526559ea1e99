package process

import (
	"fmt"
	"os"
	"slices"
)

// Well-known platform tags. The tag selects defaults such as the quit token;
// any other string is accepted.
const (
	PlatformFlutter     = "flutter"
	PlatformReactNative = "react-native"
	PlatformAndroid     = "android"
	PlatformIOS         = "ios"
)

// Hot reload and restart tokens understood by interactive mobile tools.
const (
	TokenHotReload  = "r"
	TokenHotRestart = "R"
)

// RunSpec describes one launch. It is treated as immutable once passed to Start.
type RunSpec struct {
	// Name is a display name, usually the profile name.
	Name string

	// Dir is the working directory. It must exist.
	Dir string

	// Tool is the logical executable name, resolved through the Resolver.
	Tool string

	// Args are passed to the tool in order.
	Args []string

	// Platform tags the tool family.
	Platform string

	// QuitToken is written to stdin on Stop before the grace period.
	// Empty means the process is force-killed immediately.
	QuitToken string

	// HotReload and HotRestart mark the tool as accepting those tokens.
	HotReload  bool
	HotRestart bool

	// Env holds extra environment variables for the child.
	Env map[string]string

	// EnvFiles are dotenv files merged into the child environment.
	EnvFiles []string
}

// Validate checks that the spec can be launched.
func (s RunSpec) Validate() error {
	if s.Tool == "" {
		return fmt.Errorf("%w: tool is required", ErrInvalidRunSpec)
	}
	if s.Dir == "" {
		return nil
	}
	info, err := os.Stat(s.Dir)
	if err != nil {
		return fmt.Errorf("%w: working directory: %v", ErrInvalidRunSpec, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRunSpec, s.Dir)
	}
	f, err := os.Open(s.Dir)
	if err != nil {
		return fmt.Errorf("%w: working directory not readable: %v", ErrInvalidRunSpec, err)
	}
	return f.Close()
}

// Clone returns a deep copy so the caller can keep mutating its own value.
func (s RunSpec) Clone() RunSpec {
	c := s
	c.Args = slices.Clone(s.Args)
	c.EnvFiles = slices.Clone(s.EnvFiles)
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	return c
}

// DisplayName returns Name, falling back to Tool.
func (s RunSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Tool
}
