package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crusadeos/backend/internal/api/middleware"
	"github.com/crusadeos/backend/internal/shared/id"
)

type shareRequest struct {
	Path         string `json:"path"`
	TargetUserID string `json:"targetUserId"`
}

type shareNameRequest struct {
	Name string `json:"name"`
}

// Share proposes sharing a path with another user. No copy happens until
// the target accepts.
func (h *Handlers) Share(c *gin.Context) {
	var req shareRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.TargetUserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing path or targetUserId"})
		return
	}

	target := id.UserID(req.TargetUserID)
	if _, ok := h.users.Get(target); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "target user not found"})
		return
	}

	userID := middleware.UserID(c)
	rec, err := h.shares.Share(userID, req.Path, target)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.Shares.WithLabelValues("proposed").Inc()
	c.JSON(http.StatusCreated, gin.H{
		"message": "share created",
		"name":    rec.Name,
	})
}

// ListPendingShares returns shares awaiting the caller's decision.
func (h *Handlers) ListPendingShares(c *gin.Context) {
	userID := middleware.UserID(c)
	c.JSON(http.StatusOK, h.shares.ListPending(userID))
}

// AcceptShare copies the shared entry into the caller's root and retires
// the record.
func (h *Handlers) AcceptShare(c *gin.Context) {
	var req shareNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing share name"})
		return
	}

	userID := middleware.UserID(c)
	if err := h.shares.Accept(userID, req.Name); err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.Shares.WithLabelValues("accepted").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "share accepted"})
}

// DenyShare retires the record without copying anything.
func (h *Handlers) DenyShare(c *gin.Context) {
	var req shareNameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing share name"})
		return
	}

	userID := middleware.UserID(c)
	if err := h.shares.Deny(userID, req.Name); err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.Shares.WithLabelValues("denied").Inc()
	c.JSON(http.StatusOK, gin.H{"message": "share denied"})
}
