package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/newswire/internal/common"
	"github.com/ternarybob/newswire/internal/models"
)

var blockedURLPatterns = []string{
	"*googletagmanager.com*",
	"*google-analytics.com*",
	"*doubleclick.net*",
	"*facebook.net*",
	"*hotjar.com*",
	"*onetrust.com*",
}

// BrowserEngine renders JavaScript-heavy listing pages with a headless
// Chrome instance and hands the rendered HTML to the selector scraper.
// The browser starts lazily on first use and is shared across calls.
type BrowserEngine struct {
	cfg    common.CrawlerConfig
	html   *HTMLEngine
	logger arbor.ILogger

	mu              sync.Mutex
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

func NewBrowserEngine(cfg common.CrawlerConfig, html *HTMLEngine) *BrowserEngine {
	return &BrowserEngine{
		cfg:    cfg,
		html:   html,
		logger: common.GetLogger(),
	}
}

func (e *BrowserEngine) Type() models.EngineType {
	return models.EngineBrowser
}

func (e *BrowserEngine) Extract(ctx context.Context, pageURL string, cfg models.ExtractionConfig) ([]models.RawItem, error) {
	if cfg.ItemSelector == "" {
		return nil, fmt.Errorf("browser engine requires item_selector for %s", pageURL)
	}

	html, err := e.Render(ctx, pageURL, cfg.WaitSelector)
	if err != nil {
		return nil, err
	}

	return e.html.extractFromHTML(pageURL, []byte(html), cfg)
}

// Render navigates to pageURL and returns the rendered document HTML.
// When waitSelector is set, rendering waits until it becomes visible;
// otherwise a fixed JavaScript settle delay applies.
func (e *BrowserEngine) Render(ctx context.Context, pageURL, waitSelector string) (string, error) {
	browserCtx, err := e.browser()
	if err != nil {
		return "", err
	}

	timeout := common.DurationOr(e.cfg.RequestTimeout, 60*time.Second)
	runCtx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()

	// Propagate caller cancellation into the shared browser context.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	waitTime := common.DurationOr(e.cfg.JavaScriptWaitTime, 3*time.Second)

	// Ad, analytics and consent scripts dominate load time on news
	// pages and are irrelevant to extraction.
	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetBlockedURLs(blockedURLPatterns),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.9",
		}),
		chromedp.Navigate(pageURL),
	}
	if waitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	} else {
		tasks = append(tasks, chromedp.Sleep(waitTime))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	if err := chromedp.Run(runCtx, tasks); err != nil {
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}

	e.logger.Debug().
		Str("page", pageURL).
		Dur("render_time", time.Since(start)).
		Int("html_size", len(html)).
		Msg("Page rendered")

	return html, nil
}

// browser returns the shared browser context, starting Chrome on first
// use. Startup is verified with a navigation to about:blank.
func (e *BrowserEngine) browser() (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return e.browserCtx, nil
	}

	userAgent := e.cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	e.browserCtx = browserCtx
	e.browserCancel = browserCancel
	e.allocatorCancel = allocatorCancel

	e.logger.Info().Str("user_agent", userAgent).Msg("Headless browser started")
	return e.browserCtx, nil
}

// Close shuts down the shared browser if it was started.
func (e *BrowserEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browserCancel != nil {
		e.browserCancel()
		e.browserCancel = nil
	}
	if e.allocatorCancel != nil {
		e.allocatorCancel()
		e.allocatorCancel = nil
	}
	e.browserCtx = nil
}
