package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from LOG_LEVEL, LOG_FILE, and
// NODE_ENV. Production gets the JSON formatter, development a plain text
// one with full timestamps. When LOG_FILE is set, output is appended there
// and the returned closer owns the file handle.
func NewLogger(cfg *Config) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parse LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	log := logrus.New()
	log.SetLevel(level)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closer io.Closer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open LOG_FILE %s: %w", cfg.LogFile, err)
		}
		log.SetOutput(f)
		closer = f
	}

	return log, closer, nil
}
