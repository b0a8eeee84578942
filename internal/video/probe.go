package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata is the subset of ffprobe output the pipeline needs.
type Metadata struct {
	FPS         float64
	Width       int
	Height      int
	Duration    float64 // seconds, 0 if unknown
	TotalFrames int     // 0 if unknown
	HasVideo    bool
	HasAudio    bool
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe against path and parses stream metadata.
func Probe(ctx context.Context, path string) (*Metadata, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error",
		"-show_entries", "stream=codec_type,width,height,avg_frame_rate,r_frame_rate,nb_frames:format=duration",
		"-of", "json", path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (*Metadata, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	meta := &Metadata{}
	if d, err := strconv.ParseFloat(res.Format.Duration, 64); err == nil {
		meta.Duration = d
	}
	for _, s := range res.Streams {
		switch s.CodecType {
		case "audio":
			meta.HasAudio = true
		case "video":
			if meta.HasVideo {
				continue // first video stream wins
			}
			meta.HasVideo = true
			meta.Width, meta.Height = s.Width, s.Height
			meta.FPS = parseRate(s.AvgFrameRate)
			if meta.FPS <= 0 {
				meta.FPS = parseRate(s.RFrameRate)
			}
			if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
				meta.TotalFrames = n
			}
		}
	}
	if meta.TotalFrames == 0 && meta.Duration > 0 && meta.FPS > 0 {
		meta.TotalFrames = int(meta.Duration * meta.FPS)
	}
	return meta, nil
}

// parseRate parses ffprobe rates such as "30000/1001" or "25". It returns 0 when the rate is unknown.
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// FramesWithin estimates how many frames fall inside maxDuration seconds.
func (m *Metadata) FramesWithin(maxDuration float64) int {
	limit := int(maxDuration*m.FPS) + 1
	if m.TotalFrames > 0 && m.TotalFrames < limit {
		return m.TotalFrames
	}
	return limit
}
