package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	appLog "classgrid/internal/log"
)

const (
	defaultCacheDir = "./var/source-cache"
	// maxBodyBytes caps a downloaded spreadsheet.
	maxBodyBytes = 32 << 20

	metaFile = "meta.json"
	bodyFile = "body.bin"
)

// Source is a remote schedule spreadsheet.
type Source struct {
	ID  string
	URL string
}

// Result is the outcome of one fetch.
type Result struct {
	Source Source
	Body   []byte
	// Filename is taken from Content-Disposition, else from the URL path. Its
	// extension selects the spreadsheet format.
	Filename  string
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads sources with conditional requests and keeps the last good
// body per URL on disk.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	now      func() time.Time
}

// NewFetcher creates a Fetcher caching under cacheDir. A nil client gets a
// 30 second timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = defaultCacheDir
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, now: time.Now}
}

// Fetch downloads src. On a 304, a transport error or a non-OK status the
// cached body is returned when one exists.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, errors.New("source: url is empty")
	}

	dir := f.cachePath(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("source: create cache dir: %w", err)
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, bodyFile))

	fromCache := func(reason string, err error) (Result, error) {
		if len(cached) == 0 {
			return Result{}, err
		}
		appLog.Error("source fetch failed, using cached body", err, "id", src.ID, "url", redactURL(src.URL), "reason", reason)
		return Result{Source: src, Body: cached, Filename: meta.Filename, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("source: build request: %w", err)
	}
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("source fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return fromCache("network", fmt.Errorf("source: %w", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return fromCache("read", fmt.Errorf("source: read body: %w", err))
		}
		if len(body) > maxBodyBytes {
			return Result{}, fmt.Errorf("source: body exceeds %d bytes", maxBodyBytes)
		}

		next := cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			Filename:     filename(resp, src.URL),
			UpdatedAt:    f.now().UTC(),
		}
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("source cache save failed", err, "id", src.ID, "url", redactURL(src.URL))
		}
		appLog.Info("source fetched", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body), "filename", next.Filename)
		return Result{Source: src, Body: body, Filename: next.Filename}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Result{}, errors.New("source: 304 Not Modified without a cached body")
		}
		appLog.Info("source not modified, using cache", "id", src.ID, "url", redactURL(src.URL))
		return Result{Source: src, Body: cached, Filename: meta.Filename, FromCache: true}, nil

	default:
		return fromCache("status", fmt.Errorf("source: unexpected status %s", resp.Status))
	}
}

func (f *Fetcher) cachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

// saveCache writes the body before the metadata so the metadata never
// describes a missing body.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, bodyFile), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metaFile), data, 0o600)
}

func filename(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "/" && base != "." {
			return base
		}
	}
	return ""
}

// redactURL keeps only scheme and host; paths and queries often carry
// share tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
