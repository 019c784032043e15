package shield

import (
	"net/http"
	"sync/atomic"
)

// Drain rejects new work with 503 once switched on, so a server can
// finish in-flight jobs before shutdown. Reads keep working.
type Drain struct {
	on atomic.Bool
}

// Start switches draining on.
func (d *Drain) Start() { d.on.Store(true) }

// Draining reports whether new work is refused.
func (d *Drain) Draining() bool { return d.on.Load() }

// Middleware refuses non-GET requests while draining.
func (d *Drain) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Draining() && r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusServiceUnavailable, "draining", "server is shutting down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
