package video

import (
	"math"
	"testing"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"25", 25},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{
		"streams": [
			{"codec_type": "video", "width": 640, "height": 360, "avg_frame_rate": "30/1", "r_frame_rate": "30/1", "nb_frames": "N/A"},
			{"codec_type": "audio"}
		],
		"format": {"duration": "12.5"}
	}`)
	meta, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if !meta.HasVideo || !meta.HasAudio {
		t.Errorf("Expected video and audio streams, got %+v", meta)
	}
	if meta.FPS != 30 || meta.Width != 640 || meta.Height != 360 {
		t.Errorf("Unexpected stream info: %+v", meta)
	}
	// nb_frames missing -> estimated from duration
	if meta.TotalFrames != 375 {
		t.Errorf("Expected 375 estimated frames, got %d", meta.TotalFrames)
	}
	if got := meta.FramesWithin(2); got != 61 {
		t.Errorf("FramesWithin(2) = %d, want 61", got)
	}
	if got := meta.FramesWithin(100); got != 375 {
		t.Errorf("FramesWithin(100) = %d, want 375", got)
	}
}

func TestParseProbe_NoAudio(t *testing.T) {
	meta, err := parseProbe([]byte(`{"streams":[{"codec_type":"video","avg_frame_rate":"0/0","r_frame_rate":"24/1","nb_frames":"48"}],"format":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if meta.HasAudio {
		t.Error("Expected no audio stream")
	}
	if meta.FPS != 24 || meta.TotalFrames != 48 {
		t.Errorf("Expected r_frame_rate fallback and nb_frames, got %+v", meta)
	}

	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("Expected parse error")
	}
}
