// Package config loads the meshchand configuration.
//
// Sources are applied in order: built-in defaults, the YAML file named by -config or
// MESHCHAN_CONFIG, then MESHCHAN_* environment variables. The result is validated before use.
package config
