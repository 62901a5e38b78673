// Package capture renders the /calendar page to a PNG with headless Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

const (
	DefaultWidth   = 1280
	DefaultHeight  = 1800
	DefaultTimeout = 30 * time.Second

	// readySelector is set on the page root once the week grid is rendered.
	readySelector = `[data-ready="true"]`
)

// Options describes one snapshot.
type Options struct {
	// BaseURL is the server root, e.g. "http://127.0.0.1:8080".
	BaseURL string
	// Date selects the week; zero means the server's today.
	Date model.Date

	OutputPath string

	// Width and Height are the viewport size; zero uses the defaults.
	Width  int
	Height int

	Timeout time.Duration

	// Username / Password are sent as HTTP Basic Auth when set.
	Username string
	Password string
}

// CalendarURL returns the /calendar page address for opts.
func (o Options) CalendarURL() (string, error) {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return "", fmt.Errorf("capture: base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("capture: base URL %q needs scheme and host", o.BaseURL)
	}
	u.Path = "/calendar"
	q := url.Values{}
	if !o.Date.IsZero() {
		q.Set("date", o.Date.String())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (o *Options) normalize() error {
	if o.BaseURL == "" {
		return errors.New("capture: BaseURL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CaptureCalendarPNG opens the week page in headless Chromium, waits for
// the ready marker and writes a full-page PNG to opts.OutputPath.
func CaptureCalendarPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}
	target, err := opts.CalendarURL()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": "Basic " + cred}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(target),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if dir := filepath.Dir(opts.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("capture: create output dir: %w", err)
		}
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("calendar snapshot written",
		"path", opts.OutputPath,
		"bytes", len(png),
		"elapsed", time.Since(start).String(),
	)
	return nil
}
