package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cohortchat_ws_connections",
		Help: "Realtime sessions currently joined to a chat",
	})
	WsEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cohortchat_ws_evictions_total",
		Help: "Sessions dropped because they could not keep up with fan-out",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortchat_messages_total",
		Help: "Messages stored, by origin",
	}, []string{"origin"})
	FanoutDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cohortchat_fanout_deliveries_total",
		Help: "Frames queued to realtime sessions",
	})
	PolicyDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cohortchat_policy_denials_total",
		Help: "Requests refused by the chat policy, by action and rule",
	}, []string{"action", "rule"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		WsEvictions,
		MessagesTotal,
		FanoutDeliveries,
		PolicyDenials,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry for GET /metrics.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
