package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/internal/metrics"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func TestObserver(t *testing.T) {
	var obs metrics.Observer

	stage := metrics.StageExecutionsTotal.WithLabelValues("sample", "ok")
	before := testutil.ToFloat64(stage)
	obs.ObserveStage("sample", 5*time.Millisecond, "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(stage))

	sessions := metrics.SessionsTotal.WithLabelValues("completed")
	before = testutil.ToFloat64(sessions)
	obs.ObserveSession(api.SessionCompleted)
	assert.Equal(t, before+1, testutil.ToFloat64(sessions))

	resumes := metrics.ResumesTotal.WithLabelValues("busy")
	before = testutil.ToFloat64(resumes)
	obs.ObserveResume("busy")
	assert.Equal(t, before+1, testutil.ToFloat64(resumes))
}

func TestObserveHelpers(t *testing.T) {
	failed := metrics.LLMRequestsTotal.WithLabelValues("sample", "error")
	before := testutil.ToFloat64(failed)
	metrics.ObserveLLMRequest("sample", time.Second, errors.New("x"))
	assert.Equal(t, before+1, testutil.ToFloat64(failed))

	published := metrics.EventsPublishedTotal.WithLabelValues("node_executed")
	before = testutil.ToFloat64(published)
	metrics.ObserveEvent(api.EventTypeNodeExecuted)
	assert.Equal(t, before+1, testutil.ToFloat64(published))

	before = testutil.ToFloat64(metrics.SubscribersDroppedTotal)
	metrics.ObserveDrop("s1")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SubscribersDroppedTotal))
}

func TestCountEvents(t *testing.T) {
	var got []*api.Event
	sink := metrics.CountEvents(events.SinkFunc(
		func(_ context.Context, ev *api.Event) {
			got = append(got, ev)
		},
	))

	finished := metrics.EventsPublishedTotal.WithLabelValues(
		"workflow_finished",
	)
	before := testutil.ToFloat64(finished)

	ev := &api.Event{
		EventType: api.EventTypeWorkflowFinished,
		SessionID: "s1",
	}
	sink.Publish(context.Background(), ev)

	assert.Equal(t, []*api.Event{ev}, got)
	assert.Equal(t, before+1, testutil.ToFloat64(finished))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(metrics.Middleware())
	router.GET("/items/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(
		http.MethodGet, "/items/:id", "204",
	)
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
