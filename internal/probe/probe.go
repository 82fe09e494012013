// Package probe extracts media metadata with ffprobe.
//
// Probe never fails: any problem reading a file produces the kind's default record
// so that upload and listing flows keep working when ffprobe is unavailable.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-reels/backend/internal/ffmpeg"
)

// Kind selects which stream ffprobe inspects.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

const (
	defaultFPS        = 30.0
	defaultSampleRate = 44100
)

// Metadata is the probed description of a media file.
type Metadata struct {
	Kind       Kind
	Width      int
	Height     int
	Duration   float64
	FPS        float64
	SampleRate int
	FileSize   int64
}

type videoJSON struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	FPS      float64 `json:"fps"`
	FileSize int64   `json:"file_size"`
}

type audioJSON struct {
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sample_rate"`
	FileSize   int64   `json:"file_size"`
}

// MarshalJSON emits only the fields that belong to the metadata kind.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.Kind == KindAudio {
		return json.Marshal(audioJSON{Duration: m.Duration, SampleRate: m.SampleRate, FileSize: m.FileSize})
	}
	return json.Marshal(videoJSON{Width: m.Width, Height: m.Height, Duration: m.Duration, FPS: m.FPS, FileSize: m.FileSize})
}

// Default returns the record used whenever probing fails.
func Default(kind Kind) Metadata {
	if kind == KindAudio {
		return Metadata{Kind: KindAudio, SampleRate: defaultSampleRate}
	}
	return Metadata{Kind: KindVideo, FPS: defaultFPS}
}

// Prober runs ffprobe through a Runner.
type Prober struct {
	bin    string
	runner ffmpeg.Runner
	log    *zap.Logger
}

// NewProber creates a Prober for the ffprobe binary at bin.
func NewProber(bin string, runner ffmpeg.Runner, log *zap.Logger) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	if runner == nil {
		runner = ffmpeg.ExecRunner{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{bin: bin, runner: runner, log: log}
}

// Args returns the ffprobe arguments used for kind, requesting only the needed fields.
func Args(path string, kind Kind) []string {
	if kind == KindAudio {
		return []string{
			"-v", "error",
			"-select_streams", "a:0",
			"-show_entries", "stream=duration,sample_rate",
			"-show_entries", "format=duration,size",
			"-of", "json",
			path,
		}
	}
	return []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,duration",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	}
}

// Probe returns the metadata of the file at path. It falls back to Default(kind) when
// the path is empty or missing, ffprobe is missing or exits non-zero, or its output
// cannot be parsed (see Parse).
func (p *Prober) Probe(ctx context.Context, path string, kind Kind) Metadata {
	md, err := p.probe(ctx, path, kind)
	if err != nil {
		p.log.Warn("probe failed, using defaults", zap.String("path", path), zap.String("kind", string(kind)), zap.Error(err))
		return Default(kind)
	}
	return md
}

func (p *Prober) probe(ctx context.Context, path string, kind Kind) (Metadata, error) {
	if path == "" {
		return Metadata{}, errors.New("empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return Metadata{}, fmt.Errorf("stat: %w", err)
	}
	out, err := p.runner.Output(ctx, p.bin, Args(path, kind)...)
	if err != nil {
		return Metadata{}, err
	}
	return Parse(kind, out)
}

type ffprobeOutput struct {
	Streams []map[string]any `json:"streams"`
	Format  map[string]any   `json:"format"`
}

// Parse converts ffprobe JSON into Metadata. Missing fields take the kind's default;
// it errors on invalid JSON, non-numeric fields and a zero frame-rate denominator.
// An absent or empty streams array is treated as a stream with no fields.
func Parse(kind Kind, data []byte) (Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	stream := map[string]any{}
	if len(out.Streams) > 0 && out.Streams[0] != nil {
		stream = out.Streams[0]
	}
	format := out.Format
	if format == nil {
		format = map[string]any{}
	}

	md := Default(kind)
	duration, ok, err := number(stream, "duration")
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		if duration, _, err = number(format, "duration"); err != nil {
			return Metadata{}, err
		}
	}
	md.Duration = duration

	size, _, err := number(format, "size")
	if err != nil {
		return Metadata{}, err
	}
	md.FileSize = int64(size)

	if kind == KindAudio {
		if rate, ok, err := number(stream, "sample_rate"); err != nil {
			return Metadata{}, err
		} else if ok {
			md.SampleRate = int(rate)
		}
		return md, nil
	}

	width, _, err := number(stream, "width")
	if err != nil {
		return Metadata{}, err
	}
	height, _, err := number(stream, "height")
	if err != nil {
		return Metadata{}, err
	}
	md.Width, md.Height = int(width), int(height)

	if raw, ok := stream["r_frame_rate"].(string); ok {
		fps, err := ParseFrameRate(raw)
		if err != nil {
			return Metadata{}, err
		}
		md.FPS = fps
	}
	return md, nil
}

// ParseFrameRate reduces an ffprobe rational such as "30000/1001" to a float.
// A value without a denominator is read as the numerator alone.
func ParseFrameRate(raw string) (float64, error) {
	num, den, hasDen := strings.Cut(strings.TrimSpace(raw), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", raw, err)
	}
	if !hasDen {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("frame rate %q: %w", raw, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("frame rate %q: zero denominator", raw)
	}
	return n / d, nil
}

// number reads a field that ffprobe emits either as a JSON number or a numeric string.
func number(fields map[string]any, key string) (float64, bool, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch t := v.(type) {
	case float64:
		return t, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", key, err)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("field %s: unexpected type %T", key, v)
	}
}
