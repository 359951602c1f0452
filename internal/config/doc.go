// Package config provides configuration loading and validation for the SLIMP3 client.
// It handles YAML-based configuration with per-section validation, supplies
// defaults so the client runs without a file, and resolves the server endpoint.
package config
