package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kadirpekel/scout/pkg/logger"
)

// Environment fallbacks for the logging flags.
const (
	LogLevelEnvVar  = "LOG_LEVEL"
	LogFileEnvVar   = "LOG_FILE"
	LogFormatEnvVar = "LOG_FORMAT"
)

type logSettings struct {
	level  string
	file   string
	format string
}

// resolveLogSettings applies the priority CLI flag > env var > default.
func resolveLogSettings(level, file, format string) logSettings {
	s := logSettings{
		level:  firstNonEmpty(level, os.Getenv(LogLevelEnvVar), "info"),
		file:   firstNonEmpty(file, os.Getenv(LogFileEnvVar)),
		format: firstNonEmpty(format, os.Getenv(LogFormatEnvVar), logger.FormatAuto),
	}
	return s
}

// initLogger installs the default logger. The returned cleanup is safe to
// call more than once.
func initLogger(level, file, format string) (func(), error) {
	s := resolveLogSettings(level, file, format)

	var out io.Writer = os.Stderr
	cleanup := func() {}
	if s.file != "" {
		f, closeFn, err := logger.OpenLogFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		done := false
		cleanup = func() {
			if !done {
				done = true
				closeFn()
			}
		}
	}

	logger.Init(logger.Options{
		Level:  logger.ParseLevel(s.level),
		Format: s.format,
		Output: out,
	})
	return cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
