// Package config loads, normalizes, and validates meshforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MESHFORGE_OUTPUT_DIR and the object storage credentials. The Config type
// centralizes the collaborator commands, worker pool knobs, and delivery
// settings so the CLI and worker discover everything in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
