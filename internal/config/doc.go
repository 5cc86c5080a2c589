// Package config loads, normalizes, and validates mergeflow configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// MERGEFLOW_API_TOKEN, optionally sourced from a .env file. The Config type
// centralizes every knob the daemon and CLI need so work, outbox, and state
// directories plus tool settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
