package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/crusadeos/backend/internal/api/middleware"
)

type installRequest struct {
	PackagePath string `json:"packagePath"`
}

type uninstallRequest struct {
	AppID string `json:"appId"`
}

// ListInstalledApps returns the installed-apps manifest.
func (h *Handlers) ListInstalledApps(c *gin.Context) {
	c.JSON(http.StatusOK, h.apps.List())
}

// InstallApp installs from a .pakapp file in the caller's VFS.
func (h *Handlers) InstallApp(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PackagePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "package path is required"})
		return
	}

	userID := middleware.UserID(c)
	inst, err := h.apps.Install(userID, req.PackagePath)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "app installed successfully",
		"app":     inst,
	})
}

// UninstallApp removes an app from the manifest.
func (h *Handlers) UninstallApp(c *gin.Context) {
	var req uninstallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AppID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "app id is required"})
		return
	}

	if err := h.apps.Uninstall(req.AppID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "app uninstalled successfully"})
}
