package media

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "duration": "14.98"},
    {"codec_type": "audio", "duration": "15.02"}
  ],
  "format": {"duration": "15.040000"}
}`

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(probeJSON))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("size = %dx%d", info.Width, info.Height)
	}
	if info.Duration != 15.04 {
		t.Errorf("duration = %v, want container duration 15.04", info.Duration)
	}
	if info.FPS < 29.96 || info.FPS > 29.98 {
		t.Errorf("fps = %v", info.FPS)
	}
	if !info.HasVideo || !info.HasAudio {
		t.Errorf("streams = %+v", info)
	}
}

func TestParseProbeRotation(t *testing.T) {
	data := `{"streams":[{"codec_type":"video","width":1920,"height":1080,"side_data_list":[{"rotation":-90}]}],"format":{}}`
	info, err := parseProbe([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1080 || info.Height != 1920 {
		t.Errorf("rotated size = %dx%d, want 1080x1920", info.Width, info.Height)
	}
}

func TestParseProbeAudioOnly(t *testing.T) {
	data := `{"streams":[{"codec_type":"audio","duration":"N/A"}],"format":{"duration":"N/A"}}`
	info, err := parseProbe([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if info.HasVideo || !info.HasAudio || info.Duration != 0 {
		t.Errorf("info = %+v", info)
	}
}

func TestAudioDurationRejectsUnknown(t *testing.T) {
	cases := []struct {
		name string
		info Info
	}{
		{"no audio", Info{HasVideo: true, Duration: 10}},
		{"zero", Info{HasAudio: true}},
		{"nan", Info{HasAudio: true, Duration: math.NaN()}},
		{"inf", Info{HasAudio: true, Duration: math.Inf(1)}},
		{"negative inf", Info{HasAudio: true, Duration: math.Inf(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if d, err := audioDuration(tc.info, "voice.mp3"); err == nil {
				t.Errorf("expected error, got duration %v", d)
			}
		})
	}

	d, err := audioDuration(Info{HasAudio: true, Duration: 12.5}, "voice.mp3")
	if err != nil || d != 12.5 {
		t.Errorf("duration = %v, %v, want 12.5", d, err)
	}
}

func TestFetcherDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		io.WriteString(w, "clip-bytes")
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), nil)
	loc := srv.URL + "/video-files/1/clip.hd.mp4"

	var wg sync.WaitGroup
	paths := make([]string, 4)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := f.Fetch(context.Background(), loc)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	if _, err := f.Fetch(context.Background(), loc); err != nil {
		t.Fatal(err)
	}
	// Опоздавшая горутина может начать второй Do уже после записи в кэш.
	if n := hits.Load(); n < 1 || n > 4 {
		t.Fatalf("server hits = %d", n)
	}
	before := hits.Load()
	if _, err := f.Fetch(context.Background(), loc); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != before {
		t.Error("cached locator was downloaded again")
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "clip-bytes" || filepath.Ext(paths[0]) != ".mp4" {
		t.Errorf("downloaded %q to %s", data, paths[0])
	}
	for _, p := range paths {
		if p != paths[0] {
			t.Errorf("paths differ: %v", paths)
		}
	}
}

func TestFetcherSurvivesCancelledCaller(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		io.WriteString(w, "clip-bytes")
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), nil)
	loc := srv.URL + "/clip.mp4"

	// Первый вызывающий начинает загрузку и уходит по отмене,
	// второй ждет ту же загрузку со своим контекстом.
	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, loc)
		firstErr <- err
	}()
	<-started

	type result struct {
		path string
		err  error
	}
	second := make(chan result, 1)
	go func() {
		p, err := f.Fetch(context.Background(), loc)
		second <- result{p, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller: expected context.Canceled, got %v", err)
	}
	close(release)

	res := <-second
	if res.err != nil {
		t.Fatalf("second caller: %v", res.err)
	}
	data, err := os.ReadFile(res.path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "clip-bytes" {
		t.Errorf("downloaded %q", data)
	}
}

func TestFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), nil)
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.mp4"); err == nil {
		t.Error("expected error for 404")
	}
	if _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Error("expected error for missing local file")
	}
	if _, err := f.Fetch(context.Background(), "  "); err == nil {
		t.Error("expected error for empty locator")
	}
}

func TestStillDecoder(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cover.png")
	out, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(out, image.NewRGBA(image.Rect(0, 0, 40, 30))); err != nil {
		t.Fatal(err)
	}
	out.Close()

	d, err := NewStillDecoder(p, 0)
	if err != nil {
		t.Fatalf("NewStillDecoder: %v", err)
	}
	defer d.Close()

	if d.Size() != image.Pt(40, 30) {
		t.Errorf("size = %v", d.Size())
	}
	if _, err := d.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Fatalf("second Next = %v, want io.EOF", err)
	}
}

func TestStillDecoderRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(p, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStillDecoder(p, 0); err == nil {
		t.Fatal("expected decode error")
	}
}
