package wsfeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymunastore/aretenvi/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsEvents(t *testing.T) {
	var gauge atomic.Int64
	hub := New(testLogger(), WithClientGauge(func(n int) { gauge.Store(int64(n)) }))
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	first := dial(t, server)
	second := dial(t, server)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), gauge.Load())

	event := types.Event{
		EventID:      "evt_1",
		EventType:    types.EventTypeRegistrationCreated,
		Registration: &types.Registration{ReferenceNumber: "ARET-261015-7KQ4M"},
	}
	require.NoError(t, hub.Handle(context.Background(), event))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var got types.Event
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, "evt_1", got.EventID)
		require.NotNil(t, got.Registration)
		assert.Equal(t, "ARET-261015-7KQ4M", got.Registration.ReferenceNumber)
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub := New(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Handle(context.Background(), types.Event{EventID: "evt_2"}))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := New(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := New(testLogger())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestSameOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://intake.example.com/v1/feed/ws", nil)
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "https://intake.example.com")
	assert.True(t, sameOrigin(req))

	req.Header.Set("Origin", "https://other.example.com")
	assert.False(t, sameOrigin(req))

	req.Header.Set("Origin", "::bad")
	assert.False(t, sameOrigin(req))
}

func TestHubWithoutLogger(t *testing.T) {
	hub := New(nil)
	defer hub.Close()

	// A plain GET fails the upgrade and is logged.
	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		hub.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NoError(t, hub.Handle(context.Background(), types.Event{EventID: "evt_1"}))
}
