package logging

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config defines logging configuration for console output.
type Config struct {
	// Log level, e.g. info, debug, error
	Level string
	// Either text or json
	Format string
}

// Configure applies the given configuration to the standard logrus logger.
func Configure(config Config) error {
	level := logrus.InfoLevel
	if config.Level != "" {
		parsed, err := logrus.ParseLevel(config.Level)
		if err != nil {
			return errors.WithStack(err)
		}
		level = parsed
	}
	formatter, err := formatterFor(config.Format)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)
	return nil
}

func formatterFor(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{ForceColors: true, FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}
