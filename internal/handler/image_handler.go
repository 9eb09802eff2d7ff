package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plantdeck/plantdeck/internal/imagestore"
)

type ImageHandler struct {
	store imagestore.Store
}

func NewImageHandler(store imagestore.Store) *ImageHandler {
	return &ImageHandler{store: store}
}

// Get streams a stored raster. Non-local stores serve images from their
// public URL instead, so anything not openable here is a redirect or a 404.
func (h *ImageHandler) Get(c *gin.Context) {
	name := c.Param("name")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		c.Status(http.StatusBadRequest)
		return
	}
	if h.store.Type() != "local" {
		if u := h.store.URL(name, ""); u != "" && strings.HasPrefix(u, "http") {
			c.Redirect(http.StatusFound, u)
			return
		}
		c.Status(http.StatusNotFound)
		return
	}
	file, err := h.store.Open(c.Request.Context(), name)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer file.Close()
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400")
	_, _ = io.Copy(c.Writer, file)
}
