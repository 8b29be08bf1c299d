package logging

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
)

const (
	FormatText      = "text"
	FormatJson      = "json"
	FormatColourful = "colourful"
)

var validLogFormats = map[string]bool{
	FormatText:      true,
	FormatJson:      true,
	FormatColourful: true,
}

// Config defines maestro logging configuration.
type Config struct {
	// Log level, e.g. INFO, ERROR etc
	Level string `yaml:"level"`
	// Logging format, either text, colourful or json
	Format string `yaml:"format"`
	// Whether to count log lines per level in prometheus
	Metrics bool `yaml:"metrics"`
	// Defines configuration for file logging
	File struct {
		// Whether file logging is enabled.
		Enabled bool `yaml:"enabled"`
		// The Location of the logfile on disk
		LogFile string `yaml:"logfile"`
		// Maximum size in megabytes of the log file before it gets rotated
		MaxSizeMb int `yaml:"maxSizeMb"`
		// Maximum number of old log files to retain
		MaxBackups int `yaml:"maxBackups"`
		// Maximum number of days to retain old log files
		MaxAgeDays int `yaml:"maxAgeDays"`
		// Whether to compress rotated log files
		Compress bool `yaml:"compress"`
	} `yaml:"file"`
}

// DefaultConfig logs at info level, as text, to stdout only.
func DefaultConfig() Config {
	return Config{Level: "info", Format: FormatText}
}

func validate(c Config) error {
	if _, err := parseLogLevel(c.Level); err != nil {
		return err
	}
	if err := validateLogFormat(c.Format); err != nil {
		return err
	}
	if c.File.Enabled {
		if c.File.LogFile == "" {
			return errors.New("file.logfile must be set when file logging is enabled")
		}
		if c.File.MaxSizeMb < 0 {
			return errors.New("file.maxSizeMb must not be negative")
		}
		if c.File.MaxBackups < 0 {
			return errors.New("file.maxBackups must not be negative")
		}
		if c.File.MaxAgeDays < 0 {
			return errors.New("file.maxAgeDays must not be negative")
		}
	}
	return nil
}

func validateLogFormat(f string) error {
	if _, ok := validLogFormats[f]; !ok {
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", f, maps.Keys(validLogFormats))
	}
	return nil
}

func parseLogLevel(level string) (logrus.Level, error) {
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel, errors.Errorf("unknown level: %s", level)
	}
	return l, nil
}
