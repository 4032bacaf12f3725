package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TasksCreated     = prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_tasks_created_total", Help: "Tasks created"})
	TaskTransitions  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "hivemind_task_transitions_total", Help: "Task status transitions applied"}, []string{"status"})
	TaskRetries      = prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_task_retries_total", Help: "Task retry requests"})
	LoginSuccess     = prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_login_success_total", Help: "Successful logins"})
	LoginFailures    = prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_login_failures_total", Help: "Failed login attempts"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "hivemind_login_rate_limited_total", Help: "Logins rejected by the rate limiter"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TasksCreated,
			TaskTransitions,
			TaskRetries,
			LoginSuccess,
			LoginFailures,
			RateLimitRejects,
		)
	})
	return promhttp.Handler()
}
