// Package metrics registers the Prometheus collectors of the service
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

// Observer records engine measurements into the package collectors
type Observer struct{}

const namespace = "medagent"

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the service",
		},
		[]string{"version"},
	)

	StageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_executions_total",
			Help:      "Stage executions by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of stage executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"stage"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Traversals ended, by resulting session status",
		},
		[]string{"status"},
	)

	ResumesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumes_total",
			Help:      "Resume requests by outcome",
		},
		[]string{"outcome"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Session events published by type",
		},
		[]string{"event_type"},
	)

	SubscribersDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribers_dropped_total",
			Help:      "Event subscribers dropped for falling behind",
		},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model requests by operation and status",
		},
		[]string{"op", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of model requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"op"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func (Observer) ObserveStage(
	stage api.StageID, dur time.Duration, outcome string,
) {
	StageExecutionsTotal.WithLabelValues(string(stage), outcome).Inc()
	StageDuration.WithLabelValues(string(stage)).Observe(dur.Seconds())
}

func (Observer) ObserveSession(status api.SessionStatus) {
	SessionsTotal.WithLabelValues(string(status)).Inc()
}

func (Observer) ObserveResume(outcome string) {
	ResumesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLLMRequest records the outcome of one model request
func ObserveLLMRequest(op string, dur time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	LLMRequestsTotal.WithLabelValues(op, status).Inc()
	LLMRequestDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// ObserveEvent counts a published session event
func ObserveEvent(typ api.EventType) {
	EventsPublishedTotal.WithLabelValues(string(typ)).Inc()
}

// CountEvents wraps a Sink so that every published event is counted
func CountEvents(next events.Sink) events.Sink {
	return events.SinkFunc(func(ctx context.Context, ev *api.Event) {
		ObserveEvent(ev.EventType)
		next.Publish(ctx, ev)
	})
}

// ObserveDrop counts a subscriber dropped by the event hub
func ObserveDrop(api.SessionID) {
	SubscribersDroppedTotal.Inc()
}

// Middleware returns a gin middleware that records HTTP metrics
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}
