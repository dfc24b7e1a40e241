// Package logger builds the process-wide structured logger.
package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds a logger at level. Production uses JSON lines; anything else gets
// human-readable text with full timestamps. An unparsable level falls back to
// info.
func New(env, level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	if out != nil {
		log.SetOutput(out)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
