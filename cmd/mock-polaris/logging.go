package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
)

// requestLogFormatter sends chi's request logs to a logr.Logger.
type requestLogFormatter struct {
	logger logr.Logger
}

func (f requestLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestLogEntry{
		logger: f.logger.WithValues(
			"requestID", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		),
	}
}

type requestLogEntry struct {
	logger logr.Logger
}

func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.logger.Info("request served", "status", status, "bytes", bytes, "elapsed", elapsed)
}

func (e *requestLogEntry) Panic(v any, stack []byte) {
	e.logger.Info("request panicked", "panic", v, "stack", string(stack))
}
