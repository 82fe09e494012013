package jobs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-reels/backend/pkg/apperr"
	"github.com/aura-reels/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // status streams carry no private data
	},
}

// Publisher exposes reels uploaded to object storage. Optional; nil disables /reel-url.
type Publisher interface {
	PublishedURL(ctx context.Context, jobID string) (url string, expiresIn time.Duration, err error)
}

// Handler handles edit job HTTP endpoints.
type Handler struct {
	manager      *Manager
	publisher    Publisher
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewHandler creates an edit job handler.
func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{manager: manager, pollInterval: 500 * time.Millisecond, logger: logger}
}

// SetPublisher enables GET /reel-url/:job_id.
func (h *Handler) SetPublisher(p Publisher) { h.publisher = p }

// Edit handles POST /edit/video.
func (h *Handler) Edit(c *gin.Context) {
	req := DefaultEditRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	job, err := h.manager.Submit(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"job_id": job.ID, "status": job.State})
}

// Status handles GET /reel-status/:job_id.
func (h *Handler) Status(c *gin.Context) {
	job, err := h.manager.Get(c.Param("job_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Download handles GET /download-reel/:job_id.
func (h *Handler) Download(c *gin.Context) {
	id := c.Param("job_id")
	job, err := h.manager.Download(id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotReady):
		response.BadRequest(c, "Job "+id+" is not completed yet. Current status: "+string(job.State))
		return
	case errors.Is(err, ErrOutputMissing):
		h.logger.Error("completed job without output", zap.String("job_id", id), zap.Error(err))
		response.Internal(c, "output not found for job "+id)
		return
	default:
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", job.Output.ContentType)
	c.FileAttachment(job.OutputPath(), "reel_"+job.ID+"."+job.Request.OutputFormat)
}

// PublishedURL handles GET /reel-url/:job_id.
func (h *Handler) PublishedURL(c *gin.Context) {
	if h.publisher == nil {
		response.ServiceUnavailable(c, "publishing not configured")
		return
	}
	id := c.Param("job_id")
	if _, err := h.manager.Get(id); err != nil {
		response.Error(c, err)
		return
	}
	url, expires, err := h.publisher.PublishedURL(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			h.logger.Error("published url lookup failed", zap.String("job_id", id), zap.Error(err))
		}
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"job_id": id, "url": url, "expires_in": int(expires.Seconds())})
}

// StatusStream handles GET /reel-status/:job_id/ws: it pushes the job record on
// every state change and closes after the terminal state.
func (h *Handler) StatusStream(c *gin.Context) {
	id := c.Param("job_id")
	job, err := h.manager.Get(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	last := State("")
	for {
		if job.State != last {
			if err := conn.WriteJSON(job); err != nil {
				return
			}
			last = job.State
		}
		if job.State.Terminal() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.State)))
			return
		}
		select {
		case <-gone:
			return
		case <-ticker.C:
		}
		if job, err = h.manager.Get(id); err != nil {
			return
		}
	}
}
