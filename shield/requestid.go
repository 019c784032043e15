package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/adixon02/AutoHVAC-sub002/idgen"
	"github.com/adixon02/AutoHVAC-sub002/kit"
	"github.com/adixon02/AutoHVAC-sub002/safeio"
)

// RequestHeader carries the request id in both directions.
const RequestHeader = "X-Request-ID"

var newRequestID = idgen.Prefixed("req_", idgen.NanoID(12))

// RequestID tags each request with an id (the client's X-Request-ID when
// it is a safe identifier), stores it with the remote address in the
// context, attaches a per-request logger and logs the outcome.
func RequestID(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestHeader)
			if safeio.ValidateIdentifier(id) != nil {
				id = newRequestID()
			}
			w.Header().Set(RequestHeader, id)

			ip := ExtractIP(r)
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithRemoteAddr(ctx, ip)
			ctx = kit.WithTransport(ctx, "http")
			log := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, LoggerKey, log)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			level := slog.LevelInfo
			if rec.status >= 500 {
				level = slog.LevelError
			}
			log.Log(ctx, level, "http request",
				"status", rec.status,
				"bytes", rec.bytes,
				"remote", ip,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
