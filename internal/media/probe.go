package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info is the subset of ffprobe output the compositor needs.
type Info struct {
	Width    int
	Height   int
	Duration float64 // seconds, 0 when unknown
	FPS      float64 // 0 when unknown
	HasVideo bool
	HasAudio bool
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     string `json:"duration"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Tags         struct {
		Rotate string `json:"rotate"`
	} `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
}

// Probe runs ffprobe against path.
func Probe(ctx context.Context, binary, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Info{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Info{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (Info, error) {
	var res probeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return Info{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var info Info
	info.Duration = parseFloat(res.Format.Duration)

	for _, s := range res.Streams {
		switch strings.ToLower(s.CodecType) {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width, info.Height = s.Width, s.Height
			// Телефонные ролики хранят поворот в метаданных; ffmpeg применяет его при декодировании.
			if quarterTurn(s) {
				info.Width, info.Height = info.Height, info.Width
			}
			info.FPS = parseRate(s.AvgFrameRate)
			if info.Duration == 0 {
				info.Duration = parseFloat(s.Duration)
			}
		case "audio":
			info.HasAudio = true
			if info.Duration == 0 {
				info.Duration = parseFloat(s.Duration)
			}
		}
	}
	return info, nil
}

func quarterTurn(s probeStream) bool {
	rot, _ := strconv.ParseFloat(strings.TrimSpace(s.Tags.Rotate), 64)
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rot = sd.Rotation
		}
	}
	r := int(math.Abs(math.Round(rot))) % 180
	return r == 90
}

func parseRate(v string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return parseFloat(v)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}
