package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters.
const (
	DefaultTimeout = 30 * time.Second
)

// Options defines one Chromium-based screenshot capture.
type Options struct {
	// URL to capture; the run pipeline hands over a file:// URL of the
	// rendered schedule document.
	URL string

	// Width and Height are the viewport dimensions in pixels; both must
	// match the panel resolution.
	Width  int
	Height int

	// Timeout bounds the entire capture operation; DefaultTimeout if zero.
	Timeout time.Duration
}

// PNG launches headless Chromium via chromedp, navigates to opts.URL, waits
// for the document's data-ready marker, and returns a full screenshot at
// the requested resolution.
func PNG(parentCtx context.Context, opts Options) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("capture: URL is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("capture: viewport %dx%d is invalid", opts.Width, opts.Height)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		// The schedule document marks itself ready via data-ready="true".
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return png, nil
}
