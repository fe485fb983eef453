// Package config loads renderqueued's TOML configuration file,
// applies environment-variable overrides on top of it, and — through
// Watcher — reloads the Config when the file changes on disk.
// cmd/renderqueued reads the Watcher's Config once at startup, so a
// running process keeps the values it started with.
package config
