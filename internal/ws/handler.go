package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/shared/id"
	"github.com/crusadeos/backend/internal/vfs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Desktop clients connect from their own origin
	},
}

// Authenticator resolves a session token to a user. Satisfied by the
// session store.
type Authenticator interface {
	Authenticate(token string) (id.UserID, error)
}

// Handler upgrades HTTP requests to broadcaster connections.
type Handler struct {
	hub    *Hub
	auth   Authenticator
	logger *zap.Logger
}

// NewHandler creates a WebSocket handler backed by the hub.
func NewHandler(hub *Hub, auth Authenticator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: hub, auth: auth, logger: logger}
}

// message is a client-to-server frame.
type message struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// HandleConnection authenticates the token query parameter, upgrades the
// connection, and services subscribe/unsubscribe messages until the client
// goes away. Closing always cancels the connection's timer and removes it
// from the registry.
func (h *Handler) HandleConnection(c *gin.Context) {
	userID, err := h.auth.Authenticate(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid or expired token"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer sock.Close()

	conn := h.hub.register(userID, sock)
	defer h.hub.unregister(conn)

	for {
		var msg message
		if err := sock.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "subscribe":
			norm, err := vfs.Normalize(msg.Path)
			if err != nil {
				conn.write(map[string]interface{}{
					"type":    "error",
					"message": "invalid path",
				})
				continue
			}
			conn.subscribe(norm)
			h.hub.pushListing(conn)
		case "unsubscribe":
			conn.unsubscribe()
		case "ping":
			conn.write(map[string]interface{}{"type": "pong"})
		default:
			conn.write(map[string]interface{}{
				"type":    "error",
				"message": "unknown message type",
			})
		}
	}
}
