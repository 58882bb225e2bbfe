package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campus_chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campus_chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_broadcast_deliveries_total",
			Help: "Room broadcast deliveries by result.",
		},
		[]string{"result"},
	)
	activeRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campus_chat_active_rooms",
			Help: "Number of room channels with at least one member.",
		},
	)
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_cache_lookups_total",
			Help: "Read view cache lookups by view and result.",
		},
		[]string{"view", "result"},
	)
	cacheRebuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_cache_rebuilds_total",
			Help: "Cache warm-up rebuilds by view and result.",
		},
		[]string{"view", "result"},
	)
	invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_invalidations_total",
			Help: "Model changes processed by the invalidation coordinator.",
		},
		[]string{"model", "op"},
	)
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campus_chat_tasks_total",
			Help: "Background tasks by name, stage and result.",
		},
		[]string{"task", "stage", "result"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campus_chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		broadcastDeliveriesTotal,
		activeRooms,
		cacheLookupsTotal,
		cacheRebuildsTotal,
		invalidationsTotal,
		tasksTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

// AddBroadcastDeliveries records the outcome of one room broadcast.
func AddBroadcastDeliveries(delivered, failed int) {
	broadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	broadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
}

func SetActiveRooms(n int) {
	activeRooms.Set(float64(n))
}

// IncCacheLookup counts a read view lookup; result is hit, miss or error.
func IncCacheLookup(view, result string) {
	cacheLookupsTotal.WithLabelValues(view, result).Inc()
}

// IncCacheRebuild counts a warm-up run; result is built, skipped or failed.
func IncCacheRebuild(view, result string) {
	cacheRebuildsTotal.WithLabelValues(view, result).Inc()
}

func IncInvalidation(model, op string) {
	invalidationsTotal.WithLabelValues(model, op).Inc()
}

// IncTask counts task lifecycle steps; stage is enqueue or handle.
func IncTask(task, stage, result string) {
	tasksTotal.WithLabelValues(task, stage, result).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
