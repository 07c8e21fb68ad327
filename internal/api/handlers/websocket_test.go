package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/orchestrator"
)

func dialWebSocket(t *testing.T, handler *WebSocketHandler) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(handler.ScanUpdates))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	t.Cleanup(func() { _ = conn.Close() })

	// The hub registers connections asynchronously.
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	return conn
}

func TestWebSocketBroadcast(t *testing.T) {
	handler := NewWebSocketHandler(discardLogger())
	t.Cleanup(handler.Shutdown)

	conn := dialWebSocket(t, handler)

	scanID := uuid.New()
	handler.BroadcastScanUpdate(orchestrator.ScanUpdate{
		ScanID:    scanID,
		Status:    db.ScanStatusRunning,
		Progress:  64,
		TargetURL: "https://example.com",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var message WebSocketMessage
	require.NoError(t, json.Unmarshal(payload, &message))
	assert.Equal(t, "scan_update", message.Type)
	assert.False(t, message.Timestamp.IsZero())

	data, err := json.Marshal(message.Data)
	require.NoError(t, err)

	var update orchestrator.ScanUpdate
	require.NoError(t, json.Unmarshal(data, &update))
	assert.Equal(t, scanID, update.ScanID)
	assert.Equal(t, 64, update.Progress)
	assert.Equal(t, "https://example.com", update.TargetURL)
	assert.False(t, update.Synthetic)
}

func TestWebSocketSyntheticUpdatesTagged(t *testing.T) {
	handler := NewWebSocketHandler(discardLogger())
	t.Cleanup(handler.Shutdown)

	conn := dialWebSocket(t, handler)

	handler.BroadcastScanUpdate(orchestrator.ScanUpdate{
		ScanID:    uuid.New(),
		Status:    db.ScanStatusRunning,
		Progress:  5,
		TargetURL: "https://example.com",
		Synthetic: true,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"synthetic":true`)
}

func TestWebSocketClientDisconnect(t *testing.T) {
	handler := NewWebSocketHandler(discardLogger())
	t.Cleanup(handler.Shutdown)

	conn := dialWebSocket(t, handler)
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocketShutdown(t *testing.T) {
	handler := NewWebSocketHandler(discardLogger())

	_ = dialWebSocket(t, handler)
	handler.Shutdown()

	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Shutdown is safe to call more than once.
	handler.Shutdown()
}

func TestWebSocketBroadcastWithoutClients(t *testing.T) {
	handler := NewWebSocketHandler(discardLogger())
	t.Cleanup(handler.Shutdown)

	// Must not block or panic with nobody connected.
	handler.BroadcastScanUpdate(orchestrator.ScanUpdate{ScanID: uuid.New()})
}
