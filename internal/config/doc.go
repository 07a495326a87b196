// Package config provides configuration structures and utilities for torrecon.
// It defines the proxy endpoints, rotation and execution settings, result
// locations, and the optional .torrecon YAML configuration file.
package config
