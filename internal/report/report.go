// Package report writes analysis results to disk and reads fusion inputs back.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/moodscan/internal/emotion"
)

// Format is the encoding of a report file.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json or yaml)", s)
}

// Bundle is what gets written for one analysis.
type Bundle struct {
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Analysis    *emotion.Result `json:"analysis" yaml:"analysis"`
	Ranked      []emotion.Score `json:"ranked" yaml:"ranked"`
}

// Write stores r as outputsRoot/<analysis-id>.<format> and returns the path.
func Write(outputsRoot string, format Format, r *emotion.Result) (string, error) {
	if err := os.MkdirAll(outputsRoot, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outputsRoot, r.ID.String()+"."+string(format))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b := Bundle{GeneratedAt: time.Now().UTC(), Analysis: r, Ranked: r.Combined.Ranked()}
	if err := Encode(f, format, b); err != nil {
		return "", err
	}
	return path, f.Close()
}

// Encode writes v to w in the given format.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown report format %q", format)
}

// Inputs holds the per-modality distributions read by ReadInputs.
type Inputs struct {
	Facial emotion.Distribution `json:"facial" yaml:"facial"`
	Audio  emotion.Distribution `json:"audio" yaml:"audio"`
	Text   emotion.Distribution `json:"text" yaml:"text"`
}

// Map returns the inputs keyed by modality.
func (in Inputs) Map() map[emotion.Modality]emotion.Distribution {
	return map[emotion.Modality]emotion.Distribution{
		emotion.Facial: in.Facial,
		emotion.Audio:  in.Audio,
		emotion.Text:   in.Text,
	}
}

// ReadInputs parses a {facial, audio, text} file. The format follows the
// extension; anything other than .yaml/.yml is read as JSON.
func ReadInputs(path string) (Inputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Inputs{}, err
	}
	var in Inputs
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &in)
	default:
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return Inputs{}, fmt.Errorf("parse %s: %w", path, err)
	}
	for m, d := range in.Map() {
		for label, score := range d {
			if score < 0 {
				return Inputs{}, fmt.Errorf("%s: negative score %v for %q", m, score, label)
			}
		}
	}
	return in, nil
}
