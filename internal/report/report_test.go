package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/moodscan/internal/emotion"
)

func sampleResult() *emotion.Result {
	r := emotion.NewResult("/videos/clip.mp4", 45)
	r.Facial = emotion.Distribution{emotion.Happy: 0.6, emotion.Neutral: 0.4}
	r.Text = emotion.Distribution{emotion.Happy: 0.2}
	r.Combine(emotion.DefaultWeights(), emotion.DefaultNoiseFloor)
	return r
}

func TestWrite_JSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	r := sampleResult()

	path, err := Write(dir, JSON, r)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != r.ID.String()+".json" {
		t.Errorf("Unexpected file name %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if b.Analysis.ID != r.ID || b.Analysis.Dominant != r.Dominant {
		t.Errorf("Round trip lost identity: %+v", b.Analysis)
	}
	if len(b.Ranked) != len(r.Combined) || b.Ranked[0].Label != r.Dominant {
		t.Errorf("Unexpected ranking %v", b.Ranked)
	}
	if !strings.Contains(string(data), `"combined_emotions"`) {
		t.Error("Expected combined_emotions key in JSON output")
	}
}

func TestWrite_YAML(t *testing.T) {
	r := sampleResult()
	path, err := Write(t.TempDir(), YAML, r)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Invalid YAML: %v", err)
	}
	analysis, ok := raw["analysis"].(map[string]any)
	if !ok {
		t.Fatalf("Missing analysis section: %v", raw)
	}
	if analysis["video_path"] != "/videos/clip.mp4" {
		t.Errorf("Unexpected video_path %v", analysis["video_path"])
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": JSON, "YAML": YAML, "yml": YAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("Expected error for xml")
	}
}

func TestReadInputs(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "in.json")
	os.WriteFile(jsonPath, []byte(`{"facial":{"happy":0.6},"text":{"happy":0.2,"fear":0.8}}`), 0644)
	yamlPath := filepath.Join(dir, "in.yaml")
	os.WriteFile(yamlPath, []byte("facial:\n  happy: 0.6\ntext:\n  happy: 0.2\n  fear: 0.8\n"), 0644)

	for _, p := range []string{jsonPath, yamlPath} {
		in, err := ReadInputs(p)
		if err != nil {
			t.Fatalf("ReadInputs(%s) failed: %v", p, err)
		}
		if in.Facial[emotion.Happy] != 0.6 || in.Text[emotion.Fear] != 0.8 || len(in.Audio) != 0 {
			t.Errorf("Unexpected inputs from %s: %+v", p, in)
		}
		if len(in.Map()) != 3 {
			t.Errorf("Expected 3 modalities in map")
		}
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"audio":{"sad":-1}}`), 0644)
	if _, err := ReadInputs(bad); err == nil {
		t.Error("Expected error for negative score")
	}
	if _, err := ReadInputs(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
