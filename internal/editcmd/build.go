// Package editcmd turns an edit request into an ffmpeg argument list.
package editcmd

import (
	"strconv"
	"strings"
)

// Encoding policy applied to every edit.
const (
	VideoCodec   = "libx264"
	VideoPreset  = "medium"
	AudioCodec   = "aac"
	AudioBitrate = "128k"
)

// Request is the subset of an edit request that shapes the ffmpeg invocation.
type Request struct {
	StartTime   float64
	EndTime     *float64
	MusicVolume float64
}

// TrimActive reports whether the request cuts the source.
func (r Request) TrimActive() bool {
	return r.StartTime > 0 || r.EndTime != nil
}

// ClampVolume limits a music volume factor to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TrimSpec renders the shared trim window ("start=S", "end=E" or "start=S:end=E").
// It is empty when no trim is requested.
func TrimSpec(r Request) string {
	parts := make([]string, 0, 2)
	if r.StartTime > 0 {
		parts = append(parts, "start="+formatFloat(r.StartTime))
	}
	if r.EndTime != nil {
		parts = append(parts, "end="+formatFloat(*r.EndTime))
	}
	return strings.Join(parts, ":")
}

// Build returns the ffmpeg arguments (binary excluded) that edit sourcePath into
// outputPath. An empty musicPath means no music overlay.
func Build(r Request, sourcePath, musicPath, outputPath string) []string {
	args := []string{"-i", sourcePath}

	var videoFilters, audioFilters []string
	if r.TrimActive() {
		spec := TrimSpec(r)
		videoFilters = append(videoFilters, "trim="+spec, "setpts=PTS-STARTPTS")
		audioFilters = append(audioFilters, "atrim="+spec, "asetpts=PTS-STARTPTS")
	}

	var graph []string
	audioOut := ""
	if musicPath != "" {
		args = append(args, "-i", musicPath)
		volume := "[1:a]volume=" + formatFloat(ClampVolume(r.MusicVolume)) + "[a2]"
		if len(audioFilters) > 0 {
			graph = append(graph,
				"[0:a]"+strings.Join(audioFilters, ",")+"[a1]",
				volume,
				"[a1][a2]amix=inputs=2:duration=shortest[aout]",
			)
		} else {
			graph = append(graph, volume, "[0:a][a2]amix=inputs=2:duration=shortest[aout]")
		}
		audioOut = "[aout]"
	} else if len(audioFilters) > 0 {
		graph = append(graph, "[0:a]"+strings.Join(audioFilters, ",")+"[aout]")
		audioOut = "[aout]"
	}

	switch {
	case len(videoFilters) > 0:
		graph = append([]string{"[0:v]" + strings.Join(videoFilters, ",") + "[vout]"}, graph...)
		args = append(args, "-filter_complex", strings.Join(graph, ";"), "-map", "[vout]", "-map", audioOut)
	case len(graph) > 0:
		args = append(args, "-filter_complex", strings.Join(graph, ";"), "-map", "0:v", "-map", audioOut)
	}

	return append(args,
		"-c:v", VideoCodec,
		"-preset", VideoPreset,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-y",
		outputPath,
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
