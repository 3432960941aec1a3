package logging

import (
	"context"
	"io"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"impact-story-backend/pkg/config"
)

// New builds the process logger. Production logs are JSON, everything else is text.
func New(cfg *config.Config) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

func NewWithOutput(cfg *config.Config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// WithReqIDFromCtx returns a logger carrying the request id set by middleware.RequestID.
func WithReqIDFromCtx(ctx context.Context, inner logrus.FieldLogger) logrus.FieldLogger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return inner.WithField("request_id", reqID)
	}
	return inner
}

// Discard is a logger that drops everything; used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
