package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_consumed_total",
			Help: "Total number of task deliveries consumed by queue",
		},
		[]string{"queue"},
	)
	TasksInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_inflight",
			Help: "Number of tasks currently processing",
		},
	)
	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_completed_total",
			Help: "Total number of tasks completed by priority class",
		},
		[]string{"class"},
	)
	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_failed_total",
			Help: "Total number of tasks terminally failed by class and error code",
		},
		[]string{"class", "code"},
	)
	TasksRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_retried_total",
			Help: "Total number of delayed retry republishes by class",
		},
		[]string{"class"},
	)
	TasksCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_cancelled_total",
			Help: "Total number of tasks cancelled by class",
		},
		[]string{"class"},
	)
	TasksDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tasks_dead_lettered_total",
			Help: "Total number of deliveries routed to a dead-letter queue",
		},
		[]string{"queue"},
	)
	TaskProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_processing_duration_seconds",
			Help:    "Task processing duration in seconds by priority class",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"class"},
	)

	PublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publishes_total",
			Help: "Total number of publishes by exchange",
		},
		[]string{"exchange"},
	)
	PublishConfirmsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_publish_confirms_total",
			Help: "Total number of publisher confirms by outcome",
		},
		[]string{"outcome"},
	)
	BrokerConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broker_connected",
			Help: "1 when the broker connection is up, 0 otherwise",
		},
	)
	BrokerReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_reconnects_total",
			Help: "Total number of successful broker reconnects",
		},
	)

	StoreRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_requests_total",
			Help: "Total number of store-service requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state by name (0 closed, 1 open, 2 half-open)",
		},
		[]string{"name"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksConsumedTotal)
	prometheus.MustRegister(TasksInflight)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TasksRetriedTotal)
	prometheus.MustRegister(TasksCancelledTotal)
	prometheus.MustRegister(TasksDeadLetteredTotal)
	prometheus.MustRegister(TaskProcessingDuration)
	prometheus.MustRegister(PublishesTotal)
	prometheus.MustRegister(PublishConfirmsTotal)
	prometheus.MustRegister(BrokerConnected)
	prometheus.MustRegister(BrokerReconnectsTotal)
	prometheus.MustRegister(StoreRequestsTotal)
	prometheus.MustRegister(CircuitBreakerState)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func TaskConsumed(queue string) {
	TasksConsumedTotal.WithLabelValues(queue).Inc()
}

func TaskStarted() {
	TasksInflight.Inc()
}

func TaskCompleted(class string, dur time.Duration) {
	TasksInflight.Dec()
	TasksCompletedTotal.WithLabelValues(class).Inc()
	TaskProcessingDuration.WithLabelValues(class).Observe(dur.Seconds())
}

func TaskFailed(class, code string, dur time.Duration) {
	TasksInflight.Dec()
	TasksFailedTotal.WithLabelValues(class, code).Inc()
	TaskProcessingDuration.WithLabelValues(class).Observe(dur.Seconds())
}

func TaskCancelled(class string) {
	TasksInflight.Dec()
	TasksCancelledTotal.WithLabelValues(class).Inc()
}

func TaskRetried(class string) {
	TasksInflight.Dec()
	TasksRetriedTotal.WithLabelValues(class).Inc()
}

func TaskDeadLettered(queue string) {
	TasksDeadLetteredTotal.WithLabelValues(queue).Inc()
}

func Published(exchange string) {
	PublishesTotal.WithLabelValues(exchange).Inc()
}

// PublishConfirmed records a publisher confirm outcome.
func PublishConfirmed(acked bool) {
	outcome := "acked"
	if !acked {
		outcome = "nacked"
	}
	PublishConfirmsTotal.WithLabelValues(outcome).Inc()
}

// SetBrokerConnected flips the connection gauge.
func SetBrokerConnected(up bool) {
	if up {
		BrokerConnected.Set(1)
		return
	}
	BrokerConnected.Set(0)
}

func BrokerReconnected() {
	BrokerReconnectsTotal.Inc()
}

// StoreRequest records a store-service call outcome.
func StoreRequest(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StoreRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordBreakerState publishes a circuit breaker state change.
func RecordBreakerState(name string, state BreakerState) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
