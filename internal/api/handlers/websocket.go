// Package handlers provides HTTP request handlers for the scandash API.
// This file implements the WebSocket endpoint streaming live scan updates
// from the reconciliation loop to dashboard clients.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scandash/scandash/internal/orchestrator"
)

const (
	// WebSocket configuration constants.
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	bufferSize     = 256
)

// WebSocketHandler handles WebSocket connections for real-time scan
// updates. It implements orchestrator.ProgressSink so the reconciliation
// loop can publish through it.
type WebSocketHandler struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	shutdown   chan struct{}
	closeOnce  sync.Once
	mutex      sync.RWMutex
}

// WebSocketMessage represents a message sent to clients.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewWebSocketHandler creates a new WebSocket handler and starts its hub.
func NewWebSocketHandler(logger *slog.Logger) *WebSocketHandler {
	handler := &WebSocketHandler{
		logger: logger.With("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		shutdown:   make(chan struct{}),
	}

	go handler.run()

	return handler
}

// ScanUpdates handles WebSocket connections for scan updates.
func (h *WebSocketHandler) ScanUpdates(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())
	h.logger.Info("New WebSocket connection", "request_id", requestID, "remote_addr", r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "request_id", requestID, "error", err)
		return
	}

	h.register <- conn
	h.serveConnection(conn, requestID)
}

// serveConnection configures a connection and pumps it until it closes.
func (h *WebSocketHandler) serveConnection(conn *websocket.Conn, requestID string) {
	defer func() {
		h.unregister <- conn
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("Failed to set read deadline", "request_id", requestID, "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients only listen; incoming messages are drained and dropped.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket unexpected close", "request_id", requestID, "error", err)
			}
			return
		}
	}
}

// run manages client registration and broadcasts.
func (h *WebSocketHandler) run() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-h.shutdown:
			h.logger.Debug("WebSocket handler shutting down")
			h.closeClients()
			return
		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			h.mutex.Unlock()
			h.logger.Debug("Client registered", "total_clients", h.ClientCount())
		case conn := <-h.unregister:
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", h.ClientCount())
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// Shutdown stops the hub and disconnects all clients.
func (h *WebSocketHandler) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.shutdown)
	})
}

// broadcastToClients sends a message to every connected client, dropping
// connections that fail to accept the write.
func (h *WebSocketHandler) broadcastToClients(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.logger.Error("Failed to set write deadline", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug("Write failed, closing connection", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// pingClients sends ping messages to all connected clients.
func (h *WebSocketHandler) pingClients() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.logger.Error("Failed to set write deadline for ping", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			h.logger.Debug("Ping failed, closing connection", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// closeClients disconnects every client during shutdown.
func (h *WebSocketHandler) closeClients() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// BroadcastScanUpdate implements orchestrator.ProgressSink. Updates are
// dropped when the broadcast buffer is full so a slow dashboard cannot
// stall reconciliation.
func (h *WebSocketHandler) BroadcastScanUpdate(update orchestrator.ScanUpdate) {
	message := WebSocketMessage{
		Type:      "scan_update",
		Timestamp: time.Now().UTC(),
		Data:      update,
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal scan update", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Broadcast buffer full, dropping scan update", "scan_id", update.ScanID)
	}
}
