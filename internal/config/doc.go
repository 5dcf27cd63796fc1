// Package config loads, normalizes, and validates transmute configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TRANSMUTE_NTFY_TOPIC and TRANSMUTE_API_TOKEN. The Config type centralizes
// every knob the daemon and CLI need: routing limits, job concurrency, tool
// binaries and notification settings are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
