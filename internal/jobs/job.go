// Package jobs runs video edit jobs in the background and tracks their lifecycle.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/editcmd"
	"github.com/aura-reels/backend/pkg/apperr"
)

// State is a job lifecycle state: queued → processing → completed | failed.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

var (
	// ErrNotReady is returned when a job's output is requested before it completed.
	ErrNotReady = errors.New("job not completed")
	// ErrOutputMissing is returned when a completed job has no output file on disk.
	ErrOutputMissing = errors.New("job output missing")
	// ErrIllegalTransition guards the state machine.
	ErrIllegalTransition = errors.New("illegal job state transition")
)

var allowedFormats = map[string]string{
	"mp4": "video/mp4",
	"mov": "video/quicktime",
	"mkv": "video/x-matroska",
}

// ContentType returns the MIME type of an output container.
func ContentType(format string) string {
	if ct, ok := allowedFormats[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// EditRequest asks for one edit of a generated or uploaded video.
type EditRequest struct {
	VideoID      string   `json:"video_id" binding:"required"`
	StartTime    float64  `json:"start_time"`
	EndTime      *float64 `json:"end_time"`
	AddMusic     bool     `json:"add_music"`
	MusicFileID  string   `json:"music_file_id,omitempty"`
	MusicVolume  float64  `json:"music_volume"`
	OutputFormat string   `json:"output_format"`
}

// DefaultEditRequest carries the defaults applied to fields a client leaves out.
func DefaultEditRequest() EditRequest {
	return EditRequest{MusicVolume: 1.0, OutputFormat: "mp4"}
}

// Validate checks the request fields that do not depend on registry state.
func (r EditRequest) Validate() error {
	if r.VideoID == "" {
		return apperr.Invalid("video_id required")
	}
	if r.StartTime < 0 {
		return apperr.Invalid("start_time must be >= 0")
	}
	if r.EndTime != nil && *r.EndTime <= r.StartTime {
		return apperr.Invalid("end_time must be greater than start_time")
	}
	if r.AddMusic && r.MusicFileID == "" {
		return apperr.Invalid("music_file_id required when add_music is set")
	}
	if _, ok := allowedFormats[r.OutputFormat]; !ok {
		return apperr.Invalid("unsupported output_format %q", r.OutputFormat)
	}
	return nil
}

func (r EditRequest) commandRequest() editcmd.Request {
	return editcmd.Request{StartTime: r.StartTime, EndTime: r.EndTime, MusicVolume: r.MusicVolume}
}

func (r EditRequest) wantsMusic() bool { return r.AddMusic && r.MusicFileID != "" }

// Job is a snapshot of an edit job. Output is set only when completed and Error
// only when failed.
type Job struct {
	ID        string             `json:"id"`
	State     State              `json:"status"`
	VideoID   string             `json:"video_id"`
	Request   EditRequest        `json:"edit_params"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Output    *assets.MediaAsset `json:"output,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// OutputPath returns the edited file path of a completed job.
func (j Job) OutputPath() string {
	if j.Output == nil {
		return ""
	}
	return j.Output.Path
}

func (j *Job) transition(to State, at time.Time) error {
	legal := (j.State == StateQueued && to == StateProcessing) ||
		(j.State == StateProcessing && to.Terminal())
	if !legal {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.State, to)
	}
	j.State = to
	j.UpdatedAt = at
	return nil
}

func (j *Job) complete(out assets.MediaAsset, at time.Time) error {
	if err := j.transition(StateCompleted, at); err != nil {
		return err
	}
	j.Output = &out
	return nil
}

func (j *Job) fail(reason string, at time.Time) error {
	if err := j.transition(StateFailed, at); err != nil {
		return err
	}
	j.Error = reason
	return nil
}
