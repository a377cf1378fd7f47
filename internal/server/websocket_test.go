package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilson-pinto/medical-agent-poc/internal/assert/wait"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

const wsReadTimeout = 2 * time.Second

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *api.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	var ev api.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return &ev
}

func TestWebSocketStreamsEvents(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		srv := httptest.NewServer(env.Router)
		defer srv.Close()

		_, err := env.Engine.Submit(context.Background(), api.SubmitRequest{
			SessionID: "s1",
			Document:  "note",
		})
		require.NoError(t, err)

		conn := dial(t, srv, "/sessions/s1/ws")
		assert.Eventually(t, func() bool {
			return env.Hub.Subscribers("s1") == 1
		}, wait.DefaultTimeout, 10*time.Millisecond)

		_, err = env.Engine.Resume(context.Background(), "s1",
			map[string]string{"duration": "1 day"},
		)
		require.NoError(t, err)

		var kinds []api.EventType
		for {
			ev := readEvent(t, conn)
			assert.Equal(t, api.SessionID("s1"), ev.SessionID)
			kinds = append(kinds, ev.EventType)
			if ev.EventType == api.EventTypeWorkflowFinished {
				break
			}
		}
		assert.Equal(t, []api.EventType{
			api.EventTypeNodeExecuted,
			api.EventTypeStageProgressed,
			api.EventTypeNodeExecuted,
			api.EventTypeStageProgressed,
			api.EventTypeWorkflowFinished,
		}, kinds)
	})
}

func TestWebSocketUnknownSession(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		srv := httptest.NewServer(env.Router)
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http") +
			"/sessions/missing/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCloseWebSockets(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		srv := httptest.NewServer(env.Router)
		defer srv.Close()

		_, err := env.Engine.Submit(context.Background(), api.SubmitRequest{
			SessionID: "s2",
			Document:  "note",
		})
		require.NoError(t, err)

		conn := dial(t, srv, "/sessions/s2/ws")
		assert.Eventually(t, func() bool {
			return env.Hub.Subscribers("s2") == 1
		}, wait.DefaultTimeout, 10*time.Millisecond)

		env.Server.CloseWebSockets()

		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, _, err = conn.ReadMessage()
		assert.Error(t, err)
		assert.Eventually(t, func() bool {
			return env.Hub.Subscribers("s2") == 0
		}, wait.DefaultTimeout, 10*time.Millisecond)
	})
}

func TestWebSocketClientDisconnect(t *testing.T) {
	withServer(t, func(env *testServerEnv) {
		srv := httptest.NewServer(env.Router)
		defer srv.Close()

		_, err := env.Engine.Submit(context.Background(), api.SubmitRequest{
			SessionID: "s3",
			Document:  "note",
		})
		require.NoError(t, err)

		conn := dial(t, srv, "/sessions/s3/ws")
		assert.Eventually(t, func() bool {
			return env.Hub.Subscribers("s3") == 1
		}, wait.DefaultTimeout, 10*time.Millisecond)

		_ = conn.Close()
		assert.Eventually(t, func() bool {
			return env.Hub.Subscribers("s3") == 0
		}, wait.DefaultTimeout, 10*time.Millisecond)
	})
}
