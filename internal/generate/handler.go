package generate

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/pkg/apperr"
	"github.com/aura-reels/backend/pkg/response"
)

type chatRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type speechRequest struct {
	Text    string `json:"text" binding:"required"`
	VoiceID string `json:"voice_id"`
}

// Handler handles generation HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a generation handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Video handles POST /generate/video.
func (h *Handler) Video(c *gin.Context) {
	var req VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if _, err := h.service.Validate(req); err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.Video(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), res)
		return
	}
	response.OK(c, res)
}

// Chat handles POST /chat.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.service.Chat(c.Request.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("chat failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// Speech handles POST /tts.
func (h *Handler) Speech(c *gin.Context) {
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	asset, err := h.service.Speech(c.Request.Context(), req.Text, req.VoiceID)
	if err != nil {
		h.logger.Error("speech synthesis failed", zap.Error(err))
		response.Error(c, err)
		return
	}
	response.OK(c, assets.UploadResult{ID: asset.ID, Filename: asset.Filename, Metadata: asset.Metadata})
}
