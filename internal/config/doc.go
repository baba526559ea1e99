// Package config holds devpilot's configuration model.
//
// Configuration is assembled from layers, lowest priority first:
//
//  1. Built-in defaults, including the tool profiles from Profiles
//  2. The config file (TOML or YAML, see the loader package)
//  3. DEVPILOT_* environment variables
//  4. Command-line overrides
//
// Layers are deep-merged as generic maps and then decoded into Config, so a
// file that sets only profiles.flutter.args keeps the rest of the built-in
// flutter profile.
//
// Example config.toml:
//
//	default_profile = "flutter"
//	grace_period = "1s"
//
//	[profiles.flutter]
//	args = ["run", "-d", "ios"]
//	env_files = [".env.dev"]
//
//	[watch]
//	enabled = true
//	patterns = ["lib/**/*.dart"]
package config
