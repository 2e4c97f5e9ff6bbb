package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup registers a new account and provisions its VFS root.
func (h *Handlers) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username and password are required"})
		return
	}

	if _, err := h.users.Register(req.Username, req.Password); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully"})
}

// Login verifies credentials and issues a session token.
func (h *Handlers) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username and password are required"})
		return
	}

	u, err := h.users.Verify(req.Username, req.Password)
	if err != nil {
		// Uniform 401 regardless of which credential was wrong.
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid username or password"})
		return
	}

	token := h.sessions.Issue(u.ID)
	h.metrics.SessionsActive.Set(float64(h.sessions.Count()))

	c.JSON(http.StatusOK, gin.H{
		"message":   "login successful",
		"token":     token,
		"userId":    u.ID,
		"expiresIn": int(h.sessions.TTL().Seconds()),
	})
}

// Logout deletes the caller's session. Idempotent.
func (h *Handlers) Logout(c *gin.Context) {
	token := rawBearer(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no active session found"})
		return
	}
	h.sessions.Logout(token)
	h.metrics.SessionsActive.Set(float64(h.sessions.Count()))
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Refresh rotates the caller's token: the presented one is invalidated and
// a fresh one returned.
func (h *Handlers) Refresh(c *gin.Context) {
	token := rawBearer(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "authentication token required"})
		return
	}

	newToken, err := h.sessions.Refresh(token)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"newToken":  newToken,
		"expiresIn": int(h.sessions.TTL().Seconds()),
	})
}

// ListUsers returns every account's public info, for the share dialog.
func (h *Handlers) ListUsers(c *gin.Context) {
	c.JSON(http.StatusOK, h.users.List())
}

func rawBearer(c *gin.Context) string {
	const prefix = "Bearer "
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
