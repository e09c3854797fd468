package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = 5 * time.Minute

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Fetcher resolves locators to local files. Remote media is downloaded once
// per Fetcher into Dir; concurrent requests for one locator share a download.
// The shared download is bounded by Timeout, not by any caller's context.
type Fetcher struct {
	Client    *http.Client
	Dir       string
	UserAgent string
	Timeout   time.Duration
	Logger    *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	files map[string]string
}

// NewFetcher creates a fetcher that stores downloads under dir.
func NewFetcher(dir string, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		Client:    http.DefaultClient,
		Dir:       dir,
		UserAgent: defaultUserAgent,
		Timeout:   defaultFetchTimeout,
		Logger:    logger,
		files:     make(map[string]string),
	}
}

// Fetch returns a local path for locator. Local paths and file:// URLs are
// checked for existence and returned as they are.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("fetch: empty locator")
	}

	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		p := locator
		if err == nil && u.Scheme == "file" {
			p = u.Path
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("fetch %s: %w", locator, err)
		}
		return p, nil
	}

	f.mu.Lock()
	if p, ok := f.files[locator]; ok {
		f.mu.Unlock()
		return p, nil
	}
	f.mu.Unlock()

	ch := f.group.DoChan(locator, func() (any, error) {
		// Отмена первого вызывающего не должна ронять остальных ожидающих.
		dctx := context.WithoutCancel(ctx)
		if f.Timeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, f.Timeout)
			defer cancel()
		}
		p, err := f.download(dctx, u)
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.files[locator] = p
		f.mu.Unlock()
		return p, nil
	})
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch %s: %w", locator, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (f *Fetcher) download(ctx context.Context, u *url.URL) (string, error) {
	sum := sha1.Sum([]byte(u.String()))
	name := hex.EncodeToString(sum[:8]) + path.Ext(u.Path)
	dst := filepath.Join(f.Dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", u, resp.Status)
	}

	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("fetch dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, name+".part-*")
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}

	f.Logger.Debug("media downloaded", slog.String("url", u.String()), slog.Int64("bytes", n), slog.String("path", dst))
	return dst, nil
}
