// Package config loads, normalizes, and validates stagehand configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STAGEHAND_FARM_TOKEN. The Config type centralizes every knob the submitter
// CLI and the adaptor need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
