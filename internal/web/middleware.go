package web

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sortly/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and records its latency under the route
// template rather than the raw path.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, route, strconv.Itoa(rec.status), elapsed)
		if route != "/metrics" && route != "/healthz" {
			log.Printf("http %s %s status=%d elapsed=%s", r.Method, r.URL.Path, rec.status, elapsed.Round(time.Millisecond))
		}
	})
}
