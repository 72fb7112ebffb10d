// Package config defines the format-agnostic project configuration and the
// Loader interface that format-specific packages implement.
//
// A Model holds top-level settings plus named environments. Resolve produces
// the effective settings of one environment: every field the environment
// leaves unset falls back to the top-level value.
package config
