// Package config provides configuration loading and validation for the A2F stream service.
// It handles YAML-based configuration layered over built-in defaults.
package config
