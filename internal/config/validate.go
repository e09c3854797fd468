package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateOutput(); err != nil {
		return err
	}
	if err := c.validateReframe(); err != nil {
		return err
	}
	if err := c.validateCaptions(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateOutput() error {
	o := c.Output
	if o.AspectW <= 0 || o.AspectH <= 0 {
		return fmt.Errorf("output.aspect_w and output.aspect_h must be positive, got %d:%d", o.AspectW, o.AspectH)
	}
	if o.Height <= 0 {
		return errors.New("output.height must be positive")
	}
	if o.FPS <= 0 {
		return errors.New("output.fps must be positive")
	}
	if o.Quality < 0 {
		return errors.New("output.quality must not be negative")
	}
	if c.Width() <= 0 {
		return fmt.Errorf("output width rounds to zero for %d:%d at height %d", o.AspectW, o.AspectH, o.Height)
	}
	return nil
}

func (c *Config) validateReframe() error {
	switch strings.ToLower(c.Reframe.Strategy) {
	case "resize", "center", "detector":
	default:
		return fmt.Errorf("reframe.strategy %q is not one of resize, center, detector", c.Reframe.Strategy)
	}
	switch strings.ToLower(c.Reframe.Detector) {
	case "", "contrast", "none", "off":
	default:
		return fmt.Errorf("reframe.detector %q is not one of contrast, none", c.Reframe.Detector)
	}
	if c.Reframe.SampleEvery < 0 {
		return errors.New("reframe.sample_every must not be negative")
	}
	return nil
}

func (c *Config) validateCaptions() error {
	if c.Captions.FontSize <= 0 {
		return errors.New("captions.font_size must be positive")
	}
	if c.Captions.Baseline <= 0 || c.Captions.Baseline > 1 {
		return errors.New("captions.baseline must be within (0, 1]")
	}
	if c.Captions.StrokeWidth < 0 {
		return errors.New("captions.stroke_width must not be negative")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 0 {
		return errors.New("workers.count must not be negative")
	}
	if c.Workers.SegmentTimeoutSeconds < 0 {
		return errors.New("workers.segment_timeout_seconds must not be negative")
	}
	if c.Attribution.Enabled && c.Attribution.Size <= 0 {
		return errors.New("attribution.size must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "", "auto", "console", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of auto, console, json", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
