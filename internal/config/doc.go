// Package config loads, normalizes, and validates perch configuration.
//
// Configuration lives in a TOML file (default ~/.config/perch/config.toml)
// and covers the static daemon settings: directories, capture limits,
// scheduler timing, and logging. Runtime-mutable settings such as the audio
// device or camera address live in the schedule store's system_config table
// and are deliberately not part of this package.
package config
