package source

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome for result pages that are
// built client-side
type BrowserFetcher struct {
	execPath  string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
}

// NewBrowserFetcher creates a chromedp-backed fetcher. An empty execPath
// lets chromedp locate Chrome itself.
func NewBrowserFetcher(execPath, userAgent string, timeout time.Duration) *BrowserFetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		execPath:  execPath,
		userAgent: userAgent,
		timeout:   timeout,
		settle:    2 * time.Second,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if f.execPath != "" {
		opts = append(opts, chromedp.ExecPath(f.execPath))
	}
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(f.settle),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp fetch %s: %w", pageURL, err)
	}

	log.Printf("BrowserFetcher: fetched %s (%d bytes)", pageURL, len(html))
	return html, nil
}
