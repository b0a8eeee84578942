// Package config loads moodscan settings from defaults, a YAML file,
// MOODSCAN_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/andresmejia3/moodscan/internal/emotion"
)

const EnvPrefix = "MOODSCAN"

type Service struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries int           `mapstructure:"retries" yaml:"retries"`
}

type Services struct {
	Transcriber  Service `mapstructure:"transcriber" yaml:"transcriber"`
	AudioEmotion Service `mapstructure:"audio_emotion" yaml:"audio_emotion"`
	TextEmotion  Service `mapstructure:"text_emotion" yaml:"text_emotion"`
}

type Analysis struct {
	MaxDuration float64 `mapstructure:"max_duration" yaml:"max_duration"`
	NthFrame    int     `mapstructure:"nth_frame" yaml:"nth_frame"`
	Engines     int     `mapstructure:"engines" yaml:"engines"`
	NoiseFloor  float64 `mapstructure:"noise_floor" yaml:"noise_floor"`
}

type Weights struct {
	Facial float64 `mapstructure:"facial" yaml:"facial"`
	Audio  float64 `mapstructure:"audio" yaml:"audio"`
	Text   float64 `mapstructure:"text" yaml:"text"`
}

type Audio struct {
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	ChunkSeconds int    `mapstructure:"chunk_seconds" yaml:"chunk_seconds"`
	TempDir      string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type TextClassifier struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // http | openai
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type Worker struct {
	Python      string        `mapstructure:"python" yaml:"python"`
	Script      string        `mapstructure:"script" yaml:"script"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

type Database struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type Paths struct {
	Outputs string `mapstructure:"outputs" yaml:"outputs"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Config struct {
	Analysis       Analysis       `mapstructure:"analysis" yaml:"analysis"`
	Weights        Weights        `mapstructure:"weights" yaml:"weights"`
	Audio          Audio          `mapstructure:"audio" yaml:"audio"`
	Services       Services       `mapstructure:"services" yaml:"services"`
	TextClassifier TextClassifier `mapstructure:"text_classifier" yaml:"text_classifier"`
	Worker         Worker         `mapstructure:"worker" yaml:"worker"`
	Database       Database       `mapstructure:"database" yaml:"database"`
	Paths          Paths          `mapstructure:"paths" yaml:"paths"`
	Log            Log            `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.max_duration", 45.0)
	v.SetDefault("analysis.nth_frame", 1)
	v.SetDefault("analysis.engines", 1)
	v.SetDefault("analysis.noise_floor", emotion.DefaultNoiseFloor)

	w := emotion.DefaultWeights()
	v.SetDefault("weights.facial", w[emotion.Facial])
	v.SetDefault("weights.audio", w[emotion.Audio])
	v.SetDefault("weights.text", w[emotion.Text])

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.chunk_seconds", 30)
	v.SetDefault("audio.temp_dir", "")

	for svc, port := range map[string]int{"transcriber": 8001, "audio_emotion": 8002, "text_emotion": 8003} {
		v.SetDefault("services."+svc+".url", fmt.Sprintf("http://localhost:%d", port))
		v.SetDefault("services."+svc+".timeout", 60*time.Second)
		v.SetDefault("services."+svc+".retries", 2)
	}

	v.SetDefault("text_classifier.backend", "http")
	v.SetDefault("text_classifier.model", "gpt-4.1-mini")
	v.SetDefault("text_classifier.api_key", "")
	v.SetDefault("text_classifier.base_url", "")

	v.SetDefault("worker.python", "python3")
	v.SetDefault("worker.script", filepath.Join("python", "emotion_worker.py"))
	v.SetDefault("worker.read_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Flag binds a command-line flag to a config key.
type Flag struct {
	Key  string
	Flag *pflag.Flag
}

// Load builds the effective configuration. path may be empty, in which case
// config/<CONFIG_ENV>/config.yaml is used when it exists (CONFIG_ENV
// defaults to "dev").
func Load(path string, flags ...Flag) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		guess := filepath.Join("config", env, "config.yaml")
		if _, err := os.Stat(guess); err == nil {
			path = guess
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for _, f := range flags {
		if f.Flag == nil {
			continue
		}
		if err := v.BindPFlag(f.Key, f.Flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", f.Flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = path

	if cfg.TextClassifier.APIKey == "" {
		cfg.TextClassifier.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = databaseURLFromEnv()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// databaseURLFromEnv builds a connection string from the POSTGRES_*
// variables used by the compose setup, falling back to a local default.
func databaseURLFromEnv() string {
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := os.Getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/moodscan"
}

// EmotionWeights converts the weights section to a fusion weight table.
func (c *Config) EmotionWeights() emotion.Weights {
	return emotion.Weights{
		emotion.Facial: c.Weights.Facial,
		emotion.Audio:  c.Weights.Audio,
		emotion.Text:   c.Weights.Text,
	}
}

// ChunkLength is audio.chunk_seconds as a duration.
func (c *Config) ChunkLength() time.Duration {
	return time.Duration(c.Audio.ChunkSeconds) * time.Second
}

func (c *Config) Validate() error {
	var errs []error
	if err := c.EmotionWeights().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Analysis.NoiseFloor < 0 || c.Analysis.NoiseFloor >= 1 {
		errs = append(errs, fmt.Errorf("analysis.noise_floor must be in [0,1), got %v", c.Analysis.NoiseFloor))
	}
	if c.Analysis.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("analysis.max_duration must be positive, got %v", c.Analysis.MaxDuration))
	}
	if c.Analysis.NthFrame < 1 {
		errs = append(errs, fmt.Errorf("analysis.nth_frame must be >= 1, got %d", c.Analysis.NthFrame))
	}
	if c.Analysis.Engines < 1 {
		errs = append(errs, fmt.Errorf("analysis.engines must be >= 1, got %d", c.Analysis.Engines))
	}
	if c.Audio.ChunkSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_seconds must be positive, got %d", c.Audio.ChunkSeconds))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	for name, svc := range map[string]Service{
		"transcriber":   c.Services.Transcriber,
		"audio_emotion": c.Services.AudioEmotion,
		"text_emotion":  c.Services.TextEmotion,
	} {
		if svc.Retries < 0 {
			errs = append(errs, fmt.Errorf("services.%s.retries must be >= 0, got %d", name, svc.Retries))
		}
	}
	switch c.TextClassifier.Backend {
	case "http", "openai":
	default:
		errs = append(errs, fmt.Errorf("text_classifier.backend must be http or openai, got %q", c.TextClassifier.Backend))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Dump writes the effective configuration as YAML with secrets masked.
func (c *Config) Dump(w io.Writer) error {
	out := *c
	if out.TextClassifier.APIKey != "" {
		out.TextClassifier.APIKey = "********"
	}
	out.Database.URL = redactURL(out.Database.URL)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

// redactURL hides the password in a user:pass@host connection string.
func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return u
	}
	creds := u[scheme+3 : at]
	user, _, ok := strings.Cut(creds, ":")
	if !ok {
		return u
	}
	return u[:scheme+3] + user + ":********" + u[at:]
}
