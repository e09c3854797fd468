package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from .env files into the process environment.
// Existing variables win; a missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := lookup("CLIPWEAVE_ENCODER"); ok {
		c.Output.Encoder = value
	}
	if value, ok := lookupInt("CLIPWEAVE_QUALITY"); ok {
		c.Output.Quality = value
	}
	if value, ok := lookupInt("CLIPWEAVE_WORKERS"); ok {
		c.Workers.Count = value
	}
	if value, ok := lookupInt("CLIPWEAVE_SEGMENT_TIMEOUT"); ok {
		c.Workers.SegmentTimeoutSeconds = value
	}
	if value, ok := lookup("CLIPWEAVE_STRATEGY"); ok {
		c.Reframe.Strategy = value
	}
	if value, ok := lookup("CLIPWEAVE_FFMPEG"); ok {
		c.Tools.FFmpeg = value
	}
	if value, ok := lookup("CLIPWEAVE_FFPROBE"); ok {
		c.Tools.FFprobe = value
	}
	if value, ok := lookup("CLIPWEAVE_LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	if value, ok := lookup("CLIPWEAVE_LOG_FORMAT"); ok {
		c.Logging.Format = value
	}
	if value, ok := lookup("CLIPWEAVE_WORK_DIR"); ok {
		c.Paths.WorkDir = value
	}
}

func lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func lookupInt(key string) (int, bool) {
	value, ok := lookup(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
