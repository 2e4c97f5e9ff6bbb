package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/crusadeos/backend/internal/api/middleware"
	"github.com/crusadeos/backend/internal/shared/vfserr"
)

type pathRequest struct {
	Path string `json:"path"`
}

type createRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type transferRequest struct {
	SourcePath      string `json:"sourcePath"`
	DestinationPath string `json:"destinationPath"`
}

// List returns directory contents, or a single-entry listing for a file.
func (h *Handlers) List(c *gin.Context) {
	userID := middleware.UserID(c)
	path := c.DefaultQuery("path", "/")

	entries, err := h.vfs.List(userID, path)
	h.metrics.RecordVFSOp("list", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Create makes a new file or folder.
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" || req.Name == "" || req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing path, name, or type"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.Create(userID, req.Path, req.Name, req.Type)
	h.metrics.RecordVFSOp("create", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": req.Type + " created successfully"})
}

// ReadFile returns file contents: JSON `{content}` for text, raw bytes with
// the negotiated content type for binary payloads such as images.
func (h *Handlers) ReadFile(c *gin.Context) {
	filePath := c.Query("path")
	if filePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing file path"})
		return
	}

	userID := middleware.UserID(c)
	data, err := h.vfs.ReadFileBytes(userID, filePath)
	h.metrics.RecordVFSOp("read", err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	mtype := contentTypeFor(filePath, data)
	if isTextual(mtype) {
		c.JSON(http.StatusOK, gin.H{"content": string(data)})
		return
	}
	c.Data(http.StatusOK, mtype, data)
}

// WriteFile replaces the contents of an existing file.
func (h *Handlers) WriteFile(c *gin.Context) {
	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing file path"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.WriteFile(userID, req.Path, req.Content)
	h.metrics.RecordVFSOp("write", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "file content updated successfully"})
}

// Delete removes a file or empty folder.
func (h *Handlers) Delete(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing item path"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.Delete(userID, req.Path)
	h.metrics.RecordVFSOp("delete", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item deleted successfully"})
}

// DeleteRecursive removes a file or folder and all descendants.
func (h *Handlers) DeleteRecursive(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing item path"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.DeleteRecursive(userID, req.Path)
	h.metrics.RecordVFSOp("delete_recursive", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item deleted successfully"})
}

// Move relocates or renames an entry.
func (h *Handlers) Move(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SourcePath == "" || req.DestinationPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing source or destination path"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.Move(userID, req.SourcePath, req.DestinationPath)
	h.metrics.RecordVFSOp("move", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item moved successfully"})
}

// Copy duplicates an entry.
func (h *Handlers) Copy(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SourcePath == "" || req.DestinationPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing source or destination path"})
		return
	}

	userID := middleware.UserID(c)
	err := h.vfs.Copy(userID, req.SourcePath, req.DestinationPath)
	h.metrics.RecordVFSOp("copy", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "item copied successfully"})
}

// Metadata returns name, kind, size and timestamps for an entry.
func (h *Handlers) Metadata(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing path"})
		return
	}

	userID := middleware.UserID(c)
	meta, err := h.vfs.Metadata(userID, path)
	h.metrics.RecordVFSOp("metadata", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Upload writes a multipart file part into the directory named by the path
// field. Binary-safe.
func (h *Handlers) Upload(c *gin.Context) {
	dirPath := c.PostForm("path")
	if dirPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing path field"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing file part"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, vfserr.Internal(err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.respondError(c, vfserr.Internal(err))
		return
	}

	userID := middleware.UserID(c)
	err = h.vfs.Upload(userID, dirPath, fileHeader.Filename, data)
	h.metrics.RecordVFSOp("upload", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.metrics.UploadsBytes.Add(float64(len(data)))
	c.JSON(http.StatusOK, gin.H{"message": "file uploaded successfully"})
}

// contentTypeFor negotiates a file's response content type by its extension,
// falling back to content sniffing when the extension is unknown. Extension
// wins so a renamed file keeps its declared type.
func contentTypeFor(filePath string, data []byte) string {
	if byExt := mime.TypeByExtension(path.Ext(filePath)); byExt != "" {
		return byExt
	}
	return mimetype.Detect(data).String()
}

// isTextual reports whether a negotiated MIME type is served as JSON text
// rather than raw bytes.
func isTextual(mime string) bool {
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch {
	case strings.Contains(mime, "json"),
		strings.Contains(mime, "xml"),
		strings.Contains(mime, "javascript"):
		return true
	}
	return false
}
