// CLAUDE:SUMMARY HTTP middleware for the job API: request ids and access log, security headers, body cap, per-client rate limit, panic recovery, drain switch.
// Package shield holds the HTTP middleware in front of the job API.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.Recover(logger))
//	r.Use(shield.RequestID(logger))
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.With(limiter.Middleware, shield.MaxBody(maxUpload)).Post("/v1/jobs", submit)
package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Middleware is the standard net/http middleware shape.
type Middleware = func(http.Handler) http.Handler

// Stack returns the middleware applied to every API route, outermost
// first.
func Stack(logger *slog.Logger, headers HeaderConfig) []Middleware {
	return []Middleware{
		Recover(logger),
		RequestID(logger),
		SecurityHeaders(headers),
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
