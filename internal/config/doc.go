// Package config loads the daemon configuration.
//
// A file (JSON or YAML, chosen by extension) is decoded strictly, layered
// over built-in defaults, and then overridden by CARECLOCK_ environment
// variables. Manager.Watch republishes the config when the file changes.
package config
