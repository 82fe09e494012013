// Package assets keeps the in-memory index of uploaded and generated media files.
package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/pkg/apperr"
	"github.com/aura-reels/backend/pkg/utils"
)

// ID prefixes, one per way an asset enters the registry.
const (
	PrefixUpload    = "upload"
	PrefixMusic     = "music"
	PrefixVoice     = "voice"
	PrefixGenerated = "gen"
)

// MediaAsset is an immutable record of a stored media file.
type MediaAsset struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	Path        string         `json:"-"`
	ContentType string         `json:"content_type"`
	Kind        probe.Kind     `json:"kind"`
	Metadata    probe.Metadata `json:"metadata"`
	Checksum    string         `json:"checksum,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Prober extracts metadata from a stored file.
type Prober interface {
	Probe(ctx context.Context, path string, kind probe.Kind) probe.Metadata
}

// Source describes bytes to register.
type Source struct {
	Kind        probe.Kind
	Prefix      string // defaults to upload for video, music for audio
	Filename    string
	ContentType string
	Body        io.Reader
}

// Registry maps asset ids to records. Files are written under one directory per kind.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]MediaAsset
	dirs   map[probe.Kind]string
	prober Prober
	log    *zap.Logger
	now    func() time.Time
}

// NewRegistry creates a registry writing videos to videoDir and audio to audioDir.
func NewRegistry(videoDir, audioDir string, prober Prober, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		assets: make(map[string]MediaAsset),
		dirs:   map[probe.Kind]string{probe.KindVideo: videoDir, probe.KindAudio: audioDir},
		prober: prober,
		log:    log,
		now:    time.Now,
	}
}

// NewID returns a fresh identifier such as upload_3f2a….
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Register stores src under <dir>/<id>_<filename>, probes it and indexes the record.
// A failed write leaves whatever was written on disk.
func (r *Registry) Register(ctx context.Context, src Source) (MediaAsset, error) {
	dir, ok := r.dirs[src.Kind]
	if !ok {
		return MediaAsset{}, apperr.Invalid("unsupported asset kind %q", src.Kind)
	}
	prefix := src.Prefix
	if prefix == "" {
		prefix = PrefixUpload
		if src.Kind == probe.KindAudio {
			prefix = PrefixMusic
		}
	}
	filename := cleanFilename(src.Filename)
	id := NewID(prefix)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return MediaAsset{}, fmt.Errorf("create %s dir: %w", src.Kind, err)
	}
	path := filepath.Join(dir, id+"_"+filename)
	f, err := os.Create(path)
	if err != nil {
		return MediaAsset{}, fmt.Errorf("create file: %w", err)
	}
	size, sum, err := utils.CopyWithDigest(f, src.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return MediaAsset{}, fmt.Errorf("write file: %w", err)
	}

	asset := MediaAsset{
		ID:          id,
		Filename:    filename,
		Path:        path,
		ContentType: src.ContentType,
		Kind:        src.Kind,
		Metadata:    r.prober.Probe(ctx, path, src.Kind),
		Checksum:    sum,
		CreatedAt:   r.now(),
	}

	r.mu.Lock()
	r.assets[id] = asset
	r.mu.Unlock()

	r.log.Info("asset registered",
		zap.String("asset_id", id),
		zap.String("kind", string(src.Kind)),
		zap.String("path", path),
		zap.Int64("bytes", size),
	)
	return asset, nil
}

// Resolve returns the asset with id.
func (r *Registry) Resolve(id string) (MediaAsset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[id]
	if !ok {
		return MediaAsset{}, apperr.NotFound("asset %s", id)
	}
	return a, nil
}

// List returns every asset of kind, newest first. An empty kind lists everything.
func (r *Registry) List(kind probe.Kind) []MediaAsset {
	r.mu.RLock()
	out := make([]MediaAsset, 0, len(r.assets))
	for _, a := range r.assets {
		if kind == "" || a.Kind == kind {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
