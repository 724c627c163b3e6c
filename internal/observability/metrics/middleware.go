package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// ResponseRecorder captures the response status for middleware that reports
// after the handler runs.
type ResponseRecorder struct {
	http.ResponseWriter
	status int
}

// NewResponseRecorder wraps w, defaulting the status to 200.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *ResponseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Status returns the status written by the handler.
func (r *ResponseRecorder) Status() int {
	return r.status
}

// Middleware records request counts and latency for every route.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := NewResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, req)
		elapsed := time.Since(start)

		path := routeLabel(req)
		r.requestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(recorder.Status())).Inc()
		r.requestDuration.WithLabelValues(req.Method, path).Observe(elapsed.Seconds())
	})
}

// routeLabel returns the matched route pattern rather than the raw request
// path, so arbitrary unmatched paths cannot mint unbounded label values.
func routeLabel(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
