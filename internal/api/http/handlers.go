// Package http contains the REST handlers for authentication, the VFS
// operation set, sharing, and the app package manager.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crusadeos/backend/internal/domain/apps"
	"github.com/crusadeos/backend/internal/domain/session"
	"github.com/crusadeos/backend/internal/domain/share"
	"github.com/crusadeos/backend/internal/domain/user"
	"github.com/crusadeos/backend/internal/infrastructure/monitoring"
	"github.com/crusadeos/backend/internal/shared/vfserr"
	"github.com/crusadeos/backend/internal/vfs"
	"github.com/crusadeos/backend/internal/ws"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	users    *user.Store
	sessions *session.Store
	vfs      *vfs.Service
	shares   *share.Store
	apps     *apps.Manager
	hub      *ws.Hub
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(
	users *user.Store,
	sessions *session.Store,
	vfsService *vfs.Service,
	shares *share.Store,
	appsManager *apps.Manager,
	hub *ws.Hub,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		users:    users,
		sessions: sessions,
		vfs:      vfsService,
		shares:   shares,
		apps:     appsManager,
		hub:      hub,
		metrics:  metrics,
		logger:   logger,
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Crusade VFS Server",
	})
}

// Health handles detailed health check.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"sessions":    h.sessions.Count(),
		"connections": h.hub.ConnectionCount(),
	})
}

// respondError maps a taxonomy error onto the wire: `{message}` plus the
// mapped status. Internal causes are logged server-side and withheld from
// the response.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := vfserr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		var e *vfserr.Error
		if errors.As(err, &e) && e.Unwrap() != nil {
			h.logger.Error("request failed", zap.Error(e.Unwrap()), zap.String("path", c.Request.URL.Path))
		} else {
			h.logger.Error("request failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
		}
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"message": msg})
}
