package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "classgrid/internal/log"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 800
	DefaultTimeout = 30 * time.Second

	// ReadySelector matches the dashboard root once it has rendered.
	ReadySelector = `[data-ready="true"]`
)

// Options configures one dashboard snapshot.
type Options struct {
	// URL of the dashboard page, e.g. "http://127.0.0.1:8080/dashboard".
	URL        string
	OutputPath string
	Width      int
	Height     int
	Timeout    time.Duration
	// ExecPath selects the Chromium binary; empty lets chromedp search PATH.
	ExecPath string
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, errors.New("capture: url is required")
	}
	if o.OutputPath == "" {
		return o, errors.New("capture: output path is required")
	}
	if o.Width < 0 || o.Height < 0 {
		return o, fmt.Errorf("capture: invalid viewport %dx%d", o.Width, o.Height)
	}
	if o.Width == 0 {
		o.Width = DefaultWidth
	}
	if o.Height == 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// CapturePNG renders the page at opts.URL in headless Chromium, waits for
// ReadySelector and writes a full-page PNG to opts.OutputPath. The file is
// replaced atomically so readers never see a partial image.
func CapturePNG(parent context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	started := time.Now()
	var png []byte
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	); err != nil {
		return fmt.Errorf("capture: render %s: %w", opts.URL, err)
	}

	if err := writeFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: write png: %w", err)
	}
	appLog.Info("snapshot captured", "path", opts.OutputPath, "bytes", len(png), "took", time.Since(started).String())
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
