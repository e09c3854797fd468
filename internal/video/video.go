package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ivlev/clipweave/internal/system"
)

// FrameFunc returns the i-th frame of a segment. The image is only read
// before the next call.
type FrameFunc func(i int) (image.Image, error)

// SegmentParams describes the encoded form of one segment.
type SegmentParams struct {
	Width   int
	Height  int
	FPS     int
	Encoder string // libx264, h264_nvenc, h264_videotoolbox
	Quality int    // 0 selects system.DefaultQuality(Encoder)
}

// MuxParams describes the final multiplex of encoded segments.
type MuxParams struct {
	Segments  []string
	AudioPath string // optional
	Duration  float64
	Output    string
	WorkDir   string // concat list location
}

// Encoder turns frames into segment files and segment files into the final output.
type Encoder interface {
	EncodeSegment(ctx context.Context, frames FrameFunc, count int, path string, p SegmentParams) error
	Mux(ctx context.Context, p MuxParams) error
}

// FFmpegEncoder drives the ffmpeg binary.
type FFmpegEncoder struct {
	Binary string
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e *FFmpegEncoder) EncodeSegment(ctx context.Context, frames FrameFunc, count int, path string, p SegmentParams) error {
	if count <= 0 {
		return fmt.Errorf("encode %s: no frames", path)
	}
	if p.Width <= 0 || p.Height <= 0 || p.FPS <= 0 {
		return fmt.Errorf("encode %s: invalid params %dx%d@%d", path, p.Width, p.Height, p.FPS)
	}

	cmd := exec.CommandContext(ctx, e.binary(), segmentArgs(path, count, p)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	// Запись raw RGBA данных покадрово
	w := bufio.NewWriterSize(stdin, p.Width*p.Height*4)
	var writeErr error
	for i := 0; i < count; i++ {
		img, err := frames(i)
		if err != nil {
			writeErr = fmt.Errorf("frame %d: %w", i, err)
			break
		}
		if err := writeRawRGBA(w, img, p.Width, p.Height); err != nil {
			writeErr = fmt.Errorf("write raw error: %w", err)
			break
		}
	}
	if writeErr == nil {
		writeErr = w.Flush()
	}
	stdin.Close()

	if writeErr != nil {
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return writeErr
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func segmentArgs(path string, count int, p SegmentParams) []string {
	args := []string{
		"-y",
		"-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
		"-frames:v", fmt.Sprintf("%d", count),
		"-an",
		"-pix_fmt", "yuv420p",
		"-c:v", encoderName(p.Encoder),
	}
	args = append(args, qualityArgs(p.Encoder, p.Quality)...)
	return append(args, path)
}

func encoderName(name string) string {
	if name == "" {
		return "libx264"
	}
	return name
}

func qualityArgs(encoder string, quality int) []string {
	encoder = encoderName(encoder)
	if quality <= 0 {
		quality = system.DefaultQuality(encoder)
	}
	// Качество в зависимости от энкодера
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox не везде понимает -q:v, поэтому битрейт: 75 -> 7.5 Мбит/с
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

func writeRawRGBA(w io.Writer, img image.Image, width, height int) error {
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return fmt.Errorf("frame is %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), width, height)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

// Mux concatenates the segment files, attaches the audio track when present
// and cuts the result to exactly p.Duration seconds.
func (e *FFmpegEncoder) Mux(ctx context.Context, p MuxParams) error {
	if len(p.Segments) == 0 {
		return errors.New("mux: no segments")
	}
	if p.Duration <= 0 {
		return fmt.Errorf("mux: invalid duration %f", p.Duration)
	}

	listPath, err := writeConcatList(p.WorkDir, p.Segments)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.binary(), muxArgs(listPath, p)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg mux error: %v, output: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func writeConcatList(dir string, segments []string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	listPath := filepath.Join(dir, "inputs.txt")
	var buf strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s)
		if err != nil {
			return "", fmt.Errorf("concat list: %w", err)
		}
		// Одинарные кавычки внутри пути экранируются по правилам concat demuxer.
		fmt.Fprintf(&buf, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(buf.String()), 0o644); err != nil {
		return "", fmt.Errorf("concat list: %w", err)
	}
	return listPath, nil
}

func muxArgs(listPath string, p MuxParams) []string {
	args := []string{
		"-y",
		"-v", "error",
		"-f", "concat", "-safe", "0", "-i", listPath,
	}
	if p.AudioPath != "" {
		args = append(args, "-i", p.AudioPath, "-map", "0:v:0", "-map", "1:a:0", "-c:v", "copy", "-c:a", "aac")
	} else {
		args = append(args, "-map", "0:v:0", "-c:v", "copy", "-an")
	}
	return append(args,
		"-t", fmt.Sprintf("%.3f", p.Duration),
		"-movflags", "+faststart",
		p.Output,
	)
}
