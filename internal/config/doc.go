// Package config loads the stem-lab YAML configuration, applies STEMLAB_*
// environment overrides and validates every section.
package config
