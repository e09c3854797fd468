package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// FrameSource yields decoded frames in presentation order. Next returns
// io.EOF after the last frame. A returned image is only valid until the next
// call to Next.
type FrameSource interface {
	Next() (image.Image, error)
	Size() image.Point
	Close() error
}

// VideoDecoder reads RGBA frames from an ffmpeg rawvideo pipe, resampled to
// a fixed frame rate.
type VideoDecoder struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr bytes.Buffer
	frame  *image.RGBA
	closed bool
}

// NewVideoDecoder starts ffmpeg for path. width and height must be the
// display size reported by Probe.
func NewVideoDecoder(ctx context.Context, ffmpeg, path string, width, height, fps int) (*VideoDecoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode %s: no video stream size (%dx%d)", path, width, height)
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &VideoDecoder{
		cancel: cancel,
		frame:  image.NewRGBA(image.Rect(0, 0, width, height)),
	}

	d.cmd = exec.CommandContext(ctx, ffmpeg,
		"-v", "error",
		"-i", path,
		"-an", "-sn",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
	d.cmd.Stderr = &d.stderr

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	d.stdout = stdout

	if err := d.cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return d, nil
}

func (d *VideoDecoder) Size() image.Point {
	return d.frame.Rect.Size()
}

func (d *VideoDecoder) Next() (image.Image, error) {
	_, err := io.ReadFull(d.stdout, d.frame.Pix)
	switch {
	case err == nil:
		return d.frame, nil
	case errors.Is(err, io.EOF):
		if werr := d.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Усечённый последний кадр: считаем поток законченным.
		_ = d.wait()
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

func (d *VideoDecoder) wait() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg decode error: %w: %s", err, strings.TrimSpace(d.stderr.String()))
	}
	return nil
}

// Close stops ffmpeg if it is still running.
func (d *VideoDecoder) Close() error {
	d.cancel()
	if !d.closed {
		d.closed = true
		_ = d.cmd.Wait()
	}
	return nil
}

// StillDecoder yields a single decoded image.
type StillDecoder struct {
	img  image.Image
	done bool
}

// NewStillDecoder decodes png, jpeg and gif files directly and renders the
// first page of PDF documents.
func NewStillDecoder(path string, dpi int) (*StillDecoder, error) {
	var (
		img image.Image
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		img, err = renderFirstPage(path, dpi)
	} else {
		img, err = decodeImage(path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s: empty image", path)
	}
	return &StillDecoder{img: img}, nil
}

// NewStillFrame wraps an already decoded image.
func NewStillFrame(img image.Image) *StillDecoder {
	return &StillDecoder{img: img}
}

func (s *StillDecoder) Size() image.Point { return s.img.Bounds().Size() }

func (s *StillDecoder) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.img, nil
}

func (s *StillDecoder) Close() error { return nil }

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

func renderFirstPage(path string, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, errors.New("document has no pages")
	}
	if dpi <= 0 {
		dpi = 150
	}
	return doc.ImageDPI(0, float64(dpi))
}
