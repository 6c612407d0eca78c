package monitoring

import (
	"strconv"
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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	DecisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_decisions_total",
			Help: "Review decisions recorded, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	FairnessBlockCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fairness_blocks_total",
			Help: "Negative decisions refused by the fairness gate",
		},
	)

	ReceiptCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skill_receipts_total",
			Help: "Skill receipts issued, by verification status",
		},
		[]string{"status"},
	)

	DefenseOutcomeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defense_sessions_completed_total",
			Help: "Completed defense sessions, by outcome",
		},
		[]string{"outcome"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DecisionCounter)
	prometheus.MustRegister(FairnessBlockCounter)
	prometheus.MustRegister(ReceiptCounter)
	prometheus.MustRegister(DefenseOutcomeCounter)
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
