package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "uho_jobs_enqueued_total", Help: "Jobs inserted into the queue"})
	JobsFinished     = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uho_jobs_finished_total", Help: "Jobs moved to a terminal status"}, []string{"status"})
	JobsWaiting      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "uho_jobs_waiting", Help: "Jobs waiting to be processed"})
	PageRenders      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uho_page_renders_total", Help: "Rendered pages by HTTP status"}, []string{"code"})
	PageCacheHits    = prometheus.NewCounter(prometheus.CounterOpts{Name: "uho_page_cache_hits_total", Help: "Pages served from the HTML cache"})
	APIRequests      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uho_api_requests_total", Help: "API calls by action and result code"}, []string{"action", "code"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "uho_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsFinished,
			JobsWaiting,
			PageRenders,
			PageCacheHits,
			APIRequests,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
