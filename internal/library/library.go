// Package library serves the merged view of edited, generated and uploaded videos.
package library

import (
	"sort"
	"strings"
	"time"

	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/jobs"
	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/pkg/apperr"
)

// Video types reported by the listing.
const (
	TypeGenerated = "generated"
	TypeUploaded  = "uploaded"
)

// JobSource exposes finished edit jobs.
type JobSource interface {
	Get(id string) (jobs.Job, error)
	Completed() []jobs.Job
}

// AssetSource exposes registered media.
type AssetSource interface {
	Resolve(id string) (assets.MediaAsset, error)
	List(kind probe.Kind) []assets.MediaAsset
}

// Entry is one row of GET /list/videos.
type Entry struct {
	ID        string         `json:"id"`
	Filename  string         `json:"filename"`
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  probe.Metadata `json:"metadata"`
}

// Detail is the flat body of GET /video/metadata/:id.
type Detail struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Duration  float64   `json:"duration"`
	FPS       float64   `json:"fps"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

// Library merges job outputs with the asset registry.
type Library struct {
	jobs   JobSource
	assets AssetSource
}

// New creates a Library.
func New(jobSource JobSource, assetSource AssetSource) *Library {
	return &Library{jobs: jobSource, assets: assetSource}
}

// Videos lists completed edits and generated clips as generated, uploaded clips as
// uploaded, newest first.
func (l *Library) Videos() []Entry {
	completed := l.jobs.Completed()
	videos := l.assets.List(probe.KindVideo)
	out := make([]Entry, 0, len(completed)+len(videos))

	for _, j := range completed {
		if j.Output == nil {
			continue
		}
		out = append(out, Entry{
			ID:        j.ID,
			Filename:  j.Output.Filename,
			Type:      TypeGenerated,
			CreatedAt: j.CreatedAt,
			Metadata:  j.Output.Metadata,
		})
	}
	for _, a := range videos {
		typ := TypeUploaded
		if strings.HasPrefix(a.ID, assets.PrefixGenerated+"_") {
			typ = TypeGenerated
		}
		out = append(out, Entry{
			ID:        a.ID,
			Filename:  a.Filename,
			Type:      typ,
			CreatedAt: a.CreatedAt,
			Metadata:  a.Metadata,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Metadata describes a video id, looking at edit outputs before registered assets.
func (l *Library) Metadata(id string) (Detail, error) {
	if j, err := l.jobs.Get(id); err == nil && j.Output != nil {
		return detail(id, j.Output.Filename, j.Output.Metadata, j.CreatedAt), nil
	}
	a, err := l.assets.Resolve(id)
	if err != nil || a.Kind != probe.KindVideo {
		return Detail{}, apperr.NotFound("Video not found: %s", id)
	}
	return detail(id, a.Filename, a.Metadata, a.CreatedAt), nil
}

func detail(id, filename string, md probe.Metadata, created time.Time) Detail {
	return Detail{
		ID:        id,
		Filename:  filename,
		Width:     md.Width,
		Height:    md.Height,
		Duration:  md.Duration,
		FPS:       md.FPS,
		FileSize:  md.FileSize,
		CreatedAt: created,
	}
}
