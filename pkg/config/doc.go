// Package config defines the daemon configuration, its defaults, YAML
// loading with environment overrides, and validation.
//
// Configuration is loaded in a fixed sequence: parse the YAML file, apply
// defaults, apply ECHOS_* environment overrides, then validate. Environment
// variables always take precedence over file values.
package config
