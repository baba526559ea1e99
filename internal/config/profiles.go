package config

import (
	"maps"
	"slices"

	"github.com/dshills/devpilot/internal/integration/process"
)

// Profile describes how to launch one tool.
type Profile struct {
	// Executable is the logical tool name or an explicit path.
	Executable string `yaml:"executable"`

	// Args are passed to the tool in order.
	Args []string `yaml:"args"`

	// Platform tags the tool family ("flutter", "react-native", ...).
	Platform string `yaml:"platform"`

	// QuitToken is written to stdin on stop. Empty means force kill.
	QuitToken string `yaml:"quit_token"`

	HotReload  bool `yaml:"hot_reload"`
	HotRestart bool `yaml:"hot_restart"`

	// SearchDirs are probed for Executable before the built-in dirs.
	SearchDirs []string `yaml:"search_dirs"`

	// EnvFiles are dotenv files, relative to the run directory.
	EnvFiles []string `yaml:"env_files"`

	// Env holds literal child environment variables.
	Env map[string]string `yaml:"env"`

	// MinVersion is a semver constraint checked by doctor, e.g. ">= 3.10".
	MinVersion string `yaml:"min_version"`

	// VersionArgs print the tool version, e.g. ["--version"].
	VersionArgs []string `yaml:"version_args"`

	// ToolPrefixes are line prefixes the tool stamps on app output, such as
	// "flutter:". Matching lines are unwrapped and read as Info. Empty
	// keeps the classifier default.
	ToolPrefixes []string `yaml:"tool_prefixes"`

	// InstallHint is shown when Executable cannot be found.
	InstallHint string `yaml:"install_hint"`
}

// RunSpec converts the profile into a launch description for dir.
func (p Profile) RunSpec(name, dir string) process.RunSpec {
	return process.RunSpec{
		Name:       name,
		Dir:        dir,
		Tool:       p.Executable,
		Args:       slices.Clone(p.Args),
		Platform:   p.Platform,
		QuitToken:  p.QuitToken,
		HotReload:  p.HotReload,
		HotRestart: p.HotRestart,
		Env:        maps.Clone(p.Env),
		EnvFiles:   slices.Clone(p.EnvFiles),
	}
}

// Profiles returns the built-in tool profiles.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"flutter": {
			Executable:   "flutter",
			Args:         []string{"run"},
			Platform:     process.PlatformFlutter,
			QuitToken:    "q",
			HotReload:    true,
			HotRestart:   true,
			MinVersion:   ">= 3.0.0",
			VersionArgs:  []string{"--version"},
			ToolPrefixes: []string{"flutter:"},
			InstallHint:  "install Flutter from https://docs.flutter.dev/get-started/install and add flutter/bin to PATH",
		},
		"react-native": {
			Executable:  "npx",
			Args:        []string{"react-native", "start"},
			Platform:    process.PlatformReactNative,
			HotReload:   true,
			VersionArgs: []string{"--version"},
			InstallHint: "install Node.js (which provides npx) from https://nodejs.org",
		},
		"gradle": {
			Executable:  "gradle",
			Args:        []string{"assembleDebug", "--console=plain"},
			Platform:    process.PlatformAndroid,
			VersionArgs: []string{"--version"},
			InstallHint: "install Gradle or use the project's ./gradlew by setting executable = \"./gradlew\"",
		},
		"xcodebuild": {
			Executable:  "xcodebuild",
			Args:        []string{"build"},
			Platform:    process.PlatformIOS,
			VersionArgs: []string{"-version"},
			InstallHint: "install Xcode and run xcode-select --install",
		},
		"adb-logcat": {
			Executable:  "adb",
			Args:        []string{"logcat", "-v", "brief"},
			Platform:    process.PlatformAndroid,
			VersionArgs: []string{"version"},
			InstallHint: "install the Android SDK platform-tools and set ANDROID_HOME",
		},
	}
}
