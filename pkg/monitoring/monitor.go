package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	AttemptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_total",
			Help: "Finalized quiz attempts by result",
		},
		[]string{"result"},
	)

	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempt_persist_failures_total",
			Help: "Attempts that could not be written to the attempt store",
		},
		[]string{"driver"},
	)

	CompletionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_completions_total",
			Help: "Quiz runs that reached the last question",
		},
	)

	CountdownExpirations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_countdown_expirations_total",
			Help: "Questions resolved by the countdown reaching zero",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptCounter,
			PersistFailures,
			CompletionCounter,
			CountdownExpirations,
		)
	})
}

// AttemptResult 作答结果标签: correct / incorrect / unanswered
func AttemptResult(answered, correct bool) string {
	switch {
	case correct:
		return "correct"
	case answered:
		return "incorrect"
	default:
		return "unanswered"
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
