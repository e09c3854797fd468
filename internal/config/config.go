package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Output describes the frame geometry and encoding of the composite.
type Output struct {
	AspectW int    `yaml:"aspect_w" toml:"aspect_w"`
	AspectH int    `yaml:"aspect_h" toml:"aspect_h"`
	Height  int    `yaml:"height" toml:"height"`
	FPS     int    `yaml:"fps" toml:"fps"`
	Encoder string `yaml:"encoder" toml:"encoder"` // empty: probe ffmpeg for the best H.264 encoder
	Quality int    `yaml:"quality" toml:"quality"` // 0: per-encoder default
}

// Reframe selects how background frames are fitted to the output aspect ratio.
type Reframe struct {
	Strategy    string `yaml:"strategy" toml:"strategy"` // resize, center, detector
	Detector    string `yaml:"detector" toml:"detector"` // contrast, none
	SampleEvery int    `yaml:"sample_every" toml:"sample_every"`
}

// Captions styles the caption overlay.
type Captions struct {
	FontSize    float64 `yaml:"font_size" toml:"font_size"`
	Fill        string  `yaml:"fill" toml:"fill"`
	Stroke      string  `yaml:"stroke" toml:"stroke"`
	StrokeWidth int     `yaml:"stroke_width" toml:"stroke_width"`
	Baseline    float64 `yaml:"baseline" toml:"baseline"`
}

// Attribution controls the QR badge pointing at each segment's source.
type Attribution struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Size    int  `yaml:"size" toml:"size"`
}

// Workers bounds the per-segment pipeline.
type Workers struct {
	Count                 int `yaml:"count" toml:"count"` // 0: derived from CPU and memory
	SegmentTimeoutSeconds int `yaml:"segment_timeout_seconds" toml:"segment_timeout_seconds"`
}

// Tools names the external binaries.
type Tools struct {
	FFmpeg  string `yaml:"ffmpeg" toml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe" toml:"ffprobe"`
	DPI     int    `yaml:"dpi" toml:"dpi"` // PDF still rendering
}

// Paths are the working directories of the CLI.
type Paths struct {
	InputDir  string `yaml:"input_dir" toml:"input_dir"`
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
	WorkDir   string `yaml:"work_dir" toml:"work_dir"` // empty: system temp dir
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // console, json, auto
}

// Config encapsulates all configuration values.
type Config struct {
	Output      Output      `yaml:"output" toml:"output"`
	Reframe     Reframe     `yaml:"reframe" toml:"reframe"`
	Captions    Captions    `yaml:"captions" toml:"captions"`
	Attribution Attribution `yaml:"attribution" toml:"attribution"`
	Workers     Workers     `yaml:"workers" toml:"workers"`
	Tools       Tools       `yaml:"tools" toml:"tools"`
	Paths       Paths       `yaml:"paths" toml:"paths"`
	Logging     Logging     `yaml:"logging" toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output: Output{
			AspectW: 9,
			AspectH: 16,
			Height:  1920,
			FPS:     25,
		},
		Reframe: Reframe{
			Strategy:    "detector",
			Detector:    "contrast",
			SampleEvery: 5,
		},
		Captions: Captions{
			FontSize:    70,
			Fill:        "white",
			Stroke:      "black",
			StrokeWidth: 2,
			Baseline:    0.80,
		},
		Attribution: Attribution{
			Enabled: false,
			Size:    160,
		},
		Workers: Workers{
			SegmentTimeoutSeconds: 120,
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			DPI:     150,
		},
		Paths: Paths{
			InputDir:  "input",
			OutputDir: "output",
		},
		Logging: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads path over the defaults and validates the result. The format is
// chosen by extension: .yaml/.yml or .toml. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config %s not found", path)
			}
			return nil, fmt.Errorf("open config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		return fmt.Errorf("config %s: unsupported format (want .yaml, .yml or .toml)", path)
	}
	return nil
}

// Width is the output width derived from the height and aspect ratio.
func (c *Config) Width() int {
	return int(float64(c.Output.Height)*float64(c.Output.AspectW)/float64(c.Output.AspectH) + 0.5)
}

// SegmentTimeout bounds the work on one background segment.
func (c *Config) SegmentTimeout() time.Duration {
	return time.Duration(c.Workers.SegmentTimeoutSeconds) * time.Second
}
