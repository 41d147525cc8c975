// Package feed pushes newly appended conversation entries to connected
// browsers over WebSocket so the chat log updates live in every open tab.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/identity"
)

// Hub fans appended entries out to WebSocket subscribers, keyed by
// user:session so one user's conversation never reaches another.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[int64]*websocket.Conn
	nextID int64

	allowedOrigin string
	isDev         bool
}

// NewHub creates a feed hub.
func NewHub(allowedOrigin string, isDev bool) *Hub {
	return &Hub{
		conns:         make(map[string]map[int64]*websocket.Conn),
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

func feedKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// publishWriteTimeout bounds each subscriber write so a stalled peer
// cannot hang the request that produced the entry.
const publishWriteTimeout = 5 * time.Second

// Publish sends an entry to every subscriber of its user/session.
// Write failures are logged and the failing connection is left to its own
// read loop to tear down.
func (h *Hub) Publish(entry *domain.Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("feed: failed to marshal entry", "error", err)
		return
	}

	key := feedKey(entry.UserID, entry.SessionID)

	h.mu.RLock()
	subs := make([]*websocket.Conn, 0, len(h.conns[key]))
	for _, ws := range h.conns[key] {
		subs = append(subs, ws)
	}
	h.mu.RUnlock()

	for _, ws := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), publishWriteTimeout)
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("feed: write failed", "error", err, "user_id", entry.UserID)
		}
		cancel()
	}
}

func (h *Hub) register(key string, ws *websocket.Conn) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if _, ok := h.conns[key]; !ok {
		h.conns[key] = make(map[int64]*websocket.Conn)
	}
	h.conns[key][id] = ws
	return id
}

func (h *Hub) unregister(key string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.conns[key]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.conns, key)
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("feed: origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// ServeHTTP upgrades the connection and keeps it registered until the
// client goes away. The feed is one-directional; inbound messages are
// discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("feed: failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed closed"); closeErr != nil {
			slog.Debug("feed: failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	key := feedKey(userID, sessionID)
	id := h.register(key, ws)
	defer h.unregister(key, id)

	slog.Info("feed: subscriber connected", "user_id", userID, "session_id", sessionID)

	// Drain the connection; returning when the client closes it.
	for {
		if _, _, err := ws.Read(r.Context()); err != nil {
			if websocket.CloseStatus(err) == -1 && r.Context().Err() == nil {
				slog.Debug("feed: read error", "error", err, "user_id", userID)
			}
			return
		}
	}
}
