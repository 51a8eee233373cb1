package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/config"
)

// newLogger builds the process logger: text with full timestamps, to stdout
// and, when configured, appended to a log file as well.
func newLogger(env config.EnvironmentConfig) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(env.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", env.LogLevel, err)
	}
	logger.SetLevel(level)

	if env.LogFile == "" {
		logger.SetOutput(os.Stdout)
		return logger, func() {}, nil
	}

	f, err := os.OpenFile(env.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- log path comes from config
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, func() { _ = f.Close() }, nil
}

// entryNote builds the free-text note recorded at entry.
func entryNote(strategyName, extra string) string {
	if extra == "" {
		return ""
	}
	return "0DTE " + strategyName + " | " + extra
}
