package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Current number of users holding a presence entry",
	})
	MessagesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_stored_total",
		Help: "Total number of encrypted chat messages persisted",
	})
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Inbound relay events by name and result kind",
	}, []string{"event", "kind"})
	EmitsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_emits_dropped_total",
		Help: "Outbound events dropped because the target connection was gone or slow",
	})
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
	prometheus.MustRegister(WsConnections, OnlineUsers, MessagesStored, EventsTotal, EmitsDropped, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计 HTTP 请求指标。未匹配路由统一记为 unmatched，
// /ws 的耗时是整条连接的生命周期，不计入直方图。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": strconv.Itoa(c.Writer.Status())}
		HttpRequestsTotal.With(labels).Inc()
		if path == "/ws" {
			return
		}
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
