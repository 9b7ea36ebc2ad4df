// Package realtime bridges notification push events to connected browser
// clients over socket.io, one room per recipient.
package realtime

import (
	"net/http"
	"strings"
	"sync"

	"github.com/communekit/core/internal/models"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceNotify = "/notify"

	eventConnect            = "GATEWAY_CONNECT"
	eventAuthFailed         = "AUTH_FAILED"
	eventNotificationInsert = "NOTIFICATION_INSERT"
)

type payload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// TokenValidator resolves a raw client token to a user id.
type TokenValidator func(token string) (userID string, ok bool)

// Hub manages the notify namespace and per-recipient rooms.
type Hub struct {
	mu       sync.RWMutex
	sidUser  map[string]string
	userSids map[string]int

	sio           *socketio.Server
	log           *zap.Logger
	validateToken TokenValidator
}

func NewHub(log *zap.Logger, validateToken TokenValidator) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		sidUser:       make(map[string]string),
		userSids:      make(map[string]int),
		sio:           socketio.NewServer(nil, nil),
		log:           log,
		validateToken: validateToken,
	}
	h.registerNamespace()
	return h
}

func (h *Hub) registerNamespace() {
	ns := h.sio.Of(namespaceNotify, nil)
	_ = ns.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(client))
		userID := ""
		if token != "" && h.validateToken != nil {
			userID, ok = h.validateToken(token)
			if !ok {
				userID = ""
			}
		}
		if userID == "" {
			_ = client.Emit("message", payload{Type: eventAuthFailed, Data: "auth failed"})
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		client.Join(socketio.Room(roomOf(userID)))
		h.track(sid, userID)
		_ = client.Emit("message", payload{Type: eventConnect, Data: "WebSocket connected"})

		_ = client.On("disconnect", func(_ ...any) {
			h.untrack(sid)
		})
	})
}

func (h *Hub) track(sid, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sidUser[sid] = userID
	h.userSids[userID]++
}

func (h *Hub) untrack(sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID, ok := h.sidUser[sid]
	if !ok {
		return
	}
	delete(h.sidUser, sid)
	if h.userSids[userID] > 1 {
		h.userSids[userID]--
	} else {
		delete(h.userSids, userID)
	}
}

// NotifyInsert pushes a freshly merged notification to the recipient's room.
func (h *Hub) NotifyInsert(recipientID string, n models.Notification) {
	h.sio.Of(namespaceNotify, nil).
		To(socketio.Room(roomOf(recipientID))).
		Emit("message", payload{Type: eventNotificationInsert, Data: n})
}

// ClientCount returns the number of live connections for the recipient, or
// all connections when recipientID is empty.
func (h *Hub) ClientCount(recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if recipientID == "" {
		return len(h.sidUser)
	}
	return h.userSids[recipientID]
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

// Close shuts the socket.io server down.
func (h *Hub) Close() {
	h.sio.Close(nil)
}

func roomOf(userID string) string {
	return "user:" + userID
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValue(handshake.Query, "token"); token != "" {
		return token
	}
	return firstValue(handshake.Headers, "authorization")
}

func firstValue(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
