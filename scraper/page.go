package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/egor6820/price-tracker-server/engine"
	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/poll"
)

// defaultSessionTimeout bounds a render when the request carries no timeout.
const defaultSessionTimeout = 60 * time.Second

// releaseTimeout bounds blanking a page before it goes back to the pool. A
// tab that cannot blank in time is closed.
const releaseTimeout = 5 * time.Second

// Render is the rendering strategy. It is injected into engine.RodEngine
// from main.go.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard       – hard deadline on the entire session
//  2. Renderer slot       – counting semaphore, blocks until a slot frees
//  3. Acquire page        – borrow a tab from the pool (or create one)
//  4. DEFER: release      – about:blank + health check + return to pool
//  5. Headers             – browser-like headers with a Ukrainian locale
//  6. Hijack mount        – block images/fonts/media + trackers (before navigation!)
//  7. Idle listener setup – only without hijack, before Navigate
//  8. Navigate            – bounded by the navigation timeout
//  9. Content ready       – network idle (or DOM stable) up to a bound, then settle
//  10. Harvest            – live domain rules with per-rule polling
//  11. Extract            – page.HTML() + document.title
func (s *Scraper) Render(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Renderer slot ──────────────────────────────────────────────
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, categorizeError(err, "timed out waiting for a renderer slot")
	}
	defer s.sem.Release(1)

	// ── 3. Acquire page from pool ─────────────────────────────────────
	s.activePages.Add(1)
	defer s.activePages.Add(-1)

	page, acquireErr := s.pagePool.Get(s.newPage)
	if acquireErr != nil {
		// Hand the empty slot back so the pool can create a page later.
		s.pagePool.Put(nil)
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	// ── 4. CRITICAL DEFER: prevent DOM memory leak + guarantee pool return
	success := false
	defer func() { s.release(page, success) }()

	// ── 5. Headers ────────────────────────────────────────────────────
	extraHeaders := make(map[string]string, len(req.Headers)+2)
	for k, v := range engine.DefaultHeaders {
		extraHeaders[k] = v
	}
	if u, parseErr := url.Parse(req.URL); parseErr == nil {
		extraHeaders["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
	}
	for k, v := range req.Headers {
		extraHeaders[k] = v
	}
	_ = proto.NetworkSetUserAgentOverride{
		UserAgent:      extraHeaders["User-Agent"],
		AcceptLanguage: extraHeaders["Accept-Language"],
	}.Call(page)
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(extraHeaders),
	}.Call(page)

	// ── 6. Mount hijack router ────────────────────────────────────────
	router := setupHijack(page, s.renderCfg.BlockedResourceTypes, s.renderCfg.BlockTrackers)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// ── 7. Network idle waiter BEFORE navigation ──────────────────────
	// NOTE: WaitRequestIdle uses the Fetch domain which conflicts with
	// HijackRequests on Chromium 145+. With a router mounted, step 9
	// falls back to WaitDOMStable.
	var waitIdle func()
	var idlePage *rod.Page
	if router == nil && s.renderCfg.NetworkIdleTimeout > 0 {
		idlePage = p.Timeout(s.renderCfg.NavigationTimeout + s.renderCfg.NetworkIdleTimeout)
		waitIdle = idlePage.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
	}

	// ── 8. Navigate ───────────────────────────────────────────────────
	navPage := p
	if s.renderCfg.NavigationTimeout > 0 {
		navPage = p.Timeout(s.renderCfg.NavigationTimeout)
	}
	navErr := navPage.Navigate(req.URL)
	if navPage != p {
		navPage.CancelTimeout()
	}
	if navErr != nil {
		if idlePage != nil {
			idlePage.CancelTimeout()
		}
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 9. Content ready ──────────────────────────────────────────────
	s.waitReady(ctx, p, waitIdle)
	if idlePage != nil {
		idlePage.CancelTimeout()
	}

	// ── 10. Harvest domain rules live ─────────────────────────────────
	var harvest models.Harvest
	if req.Selectors != nil {
		harvest = s.harvest(ctx, p, req.Selectors)
	}

	// ── 11. Extract rendered HTML ─────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	title := evalStringOrEmpty(p, `() => document.title`)
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	// Status code via the Navigation Timing API; event listeners for
	// NetworkResponseReceived conflict with the hijack router.
	statusCode := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}

	success = true
	slog.Debug("render complete", "url", req.URL, "bytes", len(rawHTML), "title", title)

	return &engine.FetchResult{
		HTML:       rawHTML,
		Title:      title,
		StatusCode: statusCode,
		FinalURL:   finalURL,
		Harvest:    harvest,
	}, nil
}

// newPage creates a tab and installs the stealth evasions once, so reused
// pages do not stack the script on every session.
func (s *Scraper) newPage() (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, err
	}
	if s.browserCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	s.healthMu.Lock()
	s.health[page] = newPageHealth(time.Now())
	s.healthMu.Unlock()
	return page, nil
}

// release blanks the page and returns it to the pool, or closes it and
// frees its slot when it is unhealthy.
func (s *Scraper) release(page *rod.Page, success bool) {
	blankPage := page.Timeout(releaseTimeout)
	blankErr := blankPage.Navigate("about:blank")
	blankPage.CancelTimeout()
	if blankErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", blankErr)
	}

	s.healthMu.Lock()
	h, ok := s.health[page]
	if !ok {
		h = newPageHealth(time.Now())
		s.health[page] = h
	}
	h.record(success && blankErr == nil)
	retire := blankErr != nil || h.shouldRetire(time.Now())
	if retire {
		delete(s.health, page)
	}
	s.healthMu.Unlock()

	if retire {
		slog.Debug("retiring page", "errScore", h.errScore, "uses", h.useCount)
		_ = page.Close()
		s.pagePool.Put(nil)
		return
	}
	s.pagePool.Put(page)
}

// waitReady waits for the network to go idle (or the DOM to settle when a
// hijack router is mounted), bounded by the idle timeout, then sleeps the
// fixed settle delay.
func (s *Scraper) waitReady(ctx context.Context, p *rod.Page, waitIdle func()) {
	if waitIdle != nil {
		waitIdle()
	} else if s.renderCfg.NetworkIdleTimeout > 0 {
		sp := p.Timeout(s.renderCfg.NetworkIdleTimeout)
		if stableErr := sp.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
			slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
				"error", stableErr,
			)
		}
		sp.CancelTimeout()
	}
	_ = poll.Sleep(ctx, s.renderCfg.SettleDelay)
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed ScrapeErrors so the fetcher
// can tell timeouts from navigation failures.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
