package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RequestsHistogram = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "teams",
		Name:      "api_requests",
		Help:      "Time taken to process requests",
		Buckets:   []float64{.005, .01, .025, .05, .075, .1, .15, .2, .25, .5, 1, 2.5, 5, 10, 15, 30},
	},
	[]string{"route", "method", "code"},
)

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestWatcher is a mux middleware observing request durations per route template.
type RequestWatcher struct {
	name string
}

func NewRequestWatcher(name string) *RequestWatcher {
	return &RequestWatcher{
		name: name,
	}
}

func (m *RequestWatcher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func(start time.Time) {
			RequestsHistogram.
				WithLabelValues(m.route(r), r.Method, strconv.Itoa(rec.code)).
				Observe(time.Since(start).Seconds())
		}(time.Now())

		next.ServeHTTP(rec, r)
	})
}

func (m *RequestWatcher) route(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return m.name + tpl
		}
	}

	return m.name
}
