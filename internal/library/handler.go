package library

import (
	"github.com/gin-gonic/gin"

	"github.com/aura-reels/backend/pkg/response"
)

// Handler handles library HTTP endpoints.
type Handler struct {
	library *Library
}

// NewHandler creates a library handler.
func NewHandler(library *Library) *Handler {
	return &Handler{library: library}
}

// List handles GET /list/videos.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, gin.H{"videos": h.library.Videos()})
}

// Metadata handles GET /video/metadata/:id.
func (h *Handler) Metadata(c *gin.Context) {
	d, err := h.library.Metadata(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, d)
}
