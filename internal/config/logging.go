package config

import "polyglot/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	Categories map[string]bool `yaml:"categories"` // Per-category toggles, all enabled by default
}

// Options converts the configuration into logger options. A verbose flag
// forces debug level regardless of the configured level.
func (c *LoggingConfig) Options(verbose bool) logging.Options {
	level := c.Level
	if verbose {
		level = "debug"
	}
	return logging.Options{
		Level:      level,
		JSON:       c.Format == "json",
		Categories: c.Categories,
	}
}
