package assets

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/pkg/response"
)

// UploadResult is the body returned by the upload endpoints.
type UploadResult struct {
	ID       string         `json:"id"`
	Filename string         `json:"filename"`
	Metadata probe.Metadata `json:"metadata"`
}

// Handler handles asset upload endpoints.
type Handler struct {
	registry       *Registry
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates an upload handler. maxUploadBytes <= 0 disables the size limit.
func NewHandler(registry *Registry, maxUploadBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, maxUploadBytes: maxUploadBytes, logger: logger}
}

// UploadVideo handles POST /upload/video.
func (h *Handler) UploadVideo(c *gin.Context) { h.upload(c, probe.KindVideo) }

// UploadMusic handles POST /upload/music.
func (h *Handler) UploadMusic(c *gin.Context) { h.upload(c, probe.KindAudio) }

func (h *Handler) upload(c *gin.Context, kind probe.Kind) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.BadRequest(c, "file too large")
			return
		}
		response.BadRequest(c, "multipart field \"file\" required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		response.Internal(c, err.Error())
		return
	}
	defer f.Close()

	asset, err := h.registry.Register(c.Request.Context(), Source{
		Kind:        kind,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		h.logger.Error("register upload failed", zap.Error(err), zap.String("kind", string(kind)))
		response.Internal(c, err.Error())
		return
	}
	response.OK(c, UploadResult{ID: asset.ID, Filename: asset.Filename, Metadata: asset.Metadata})
}
