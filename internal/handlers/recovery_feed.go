package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"github.com/opendev/membership-app/backend/internal/core/ports"
	"github.com/opendev/membership-app/backend/internal/entities"
)

var _ ports.CaseNotifier = (*FeedManager)(nil)

// FeedManager pushes newly detected recovery cases to connected admin
// dashboards over WebSocket.
type FeedManager struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewFeedManager(logger *slog.Logger) *FeedManager {
	return &FeedManager{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

type feedEvent struct {
	Type string                `json:"type"`
	Case entities.RecoveryCase `json:"case"`
}

// NotifyNewCase broadcasts one case to every subscriber. Dead connections
// are dropped on write failure.
func (m *FeedManager) NotifyNewCase(recoveryCase entities.RecoveryCase) {
	event := feedEvent{Type: "recovery_case_detected", Case: recoveryCase}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range maps.Keys(m.conns) {
		if err := conn.WriteJSON(event); err != nil {
			m.logger.Error("Failed to push recovery case to subscriber", "error", err)
			conn.Close()
			delete(m.conns, conn)
		}
	}
}

// HandleConnection upgrades the request and keeps the subscription open
// until the client disconnects.
func (m *FeedManager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Error upgrading connection", "error", err)
		return
	}

	m.mu.Lock()
	m.conns[conn] = true
	m.mu.Unlock()

	m.logger.Info("New recovery feed subscriber", "remote", r.RemoteAddr)

	for {
		if _, _, readErr := conn.ReadMessage(); readErr != nil {
			m.mu.Lock()
			delete(m.conns, conn)
			m.mu.Unlock()
			conn.Close()
			m.logger.Info("Recovery feed subscriber disconnected", "remote", r.RemoteAddr)
			break
		}
	}
}
