// Package logx configures the process-wide logrus logger.
package logx

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup applies level and format to the standard logger and returns the base entry
// components derive their loggers from.
func Setup(level, format string) *logrus.Entry {
	logger := logrus.StandardLogger()
	Configure(logger, level, format)
	return logrus.NewEntry(logger)
}

// Configure applies level and format to logger. Unknown levels fall back to info.
func Configure(logger *logrus.Logger, level, format string) {
	logger.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
