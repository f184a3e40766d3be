// Package health serves the /live, /ready, and /metrics HTTP
// endpoints shared by every streamit process.
package health

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check is a named readiness probe; it returns nil when healthy.
type Check func() error

// Server exposes /live, /ready, /metrics on one *http.Server.
type Server struct {
	mu     sync.Mutex
	checks map[string]Check
	mux    *http.ServeMux
}

// New creates a health server whose /metrics route serves gatherer.
// Pass the same *prometheus.Registry the caller registered its
// counters on, so the process's own metrics actually show up.
func New(gatherer prometheus.Gatherer) *Server {
	s := &Server{checks: make(map[string]Check), mux: http.NewServeMux()}
	s.mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		checks := make(map[string]Check, len(s.checks))
		for name, c := range s.checks {
			checks[name] = c
		}
		s.mu.Unlock()
		for name, check := range checks {
			if err := check(); err != nil {
				http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return s
}

// RegisterCheck adds a named readiness check.
func (s *Server) RegisterCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}
