package utils

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestGenerateVideoID(t *testing.T) {
	// Integration test using the OS filesystem
	tmp, err := os.CreateTemp("", "video_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write([]byte("fake video content")); err != nil {
		t.Fatal(err)
	}
	tmp.Close()

	id, err := GenerateVideoID(tmp.Name())
	if err != nil || id == "" {
		t.Errorf("Failed to generate ID: %v", err)
	}

	// Verify Determinism
	id2, _ := GenerateVideoID(tmp.Name())
	if id != id2 {
		t.Errorf("Hash is not deterministic. Got %s, then %s", id, id2)
	}

	// Verify Sensitivity (Change content -> Change ID)
	f, _ := os.OpenFile(tmp.Name(), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write([]byte(" modification"))
	f.Close()
	// Some filesystems have coarse mtime; the size change alone must alter the hash.
	time.Sleep(10 * time.Millisecond)

	id3, _ := GenerateVideoID(tmp.Name())
	if id == id3 {
		t.Error("Hash did not change after file modification")
	}

	if _, err := GenerateVideoID("/nonexistent/clip.mp4"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSafeCommandCapturesStderr(t *testing.T) {
	cmd := NewSafeCommand(context.Background(), "sh", "-c", "echo boom 1>&2; exit 3")
	if err := cmd.Run(); err == nil {
		t.Fatal("Expected non-zero exit")
	}
	if got := cmd.Logs(); got != "boom\n" {
		t.Errorf("Expected captured stderr %q, got %q", "boom\n", got)
	}
}
