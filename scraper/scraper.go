package scraper

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"golang.org/x/sync/semaphore"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/models"
)

// Scraper manages the global browser lifecycle, the page pool and the
// renderer semaphore. It is safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	sem         *semaphore.Weighted
	browserCfg  config.BrowserConfig
	renderCfg   config.RenderConfig
	activePages atomic.Int32

	healthMu sync.Mutex
	health   map[*rod.Page]*pageHealth
}

// NewScraper launches a headless browser and initialises the reusable page
// pool. Pool size and semaphore weight are both MaxParallel.
func NewScraper(browserCfg config.BrowserConfig, renderCfg config.RenderConfig) (*Scraper, error) {
	if browserCfg.MaxParallel < 1 {
		browserCfg.MaxParallel = 1
	}

	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "uk-UA")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxParallel)
	slog.Info("page pool created", "maxParallel", browserCfg.MaxParallel)

	return &Scraper{
		browser:    browser,
		pagePool:   pool,
		sem:        semaphore.NewWeighted(int64(browserCfg.MaxParallel)),
		browserCfg: browserCfg,
		renderCfg:  renderCfg,
		health:     make(map[*rod.Page]*pageHealth),
	}, nil
}

// ActivePages returns the number of rendering sessions in flight.
func (s *Scraper) ActivePages() int {
	return int(s.activePages.Load())
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: draining page pool")
	s.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("scraper shutting down: closing browser")
	if err := s.browser.Close(); err != nil {
		slog.Warn("scraper shutdown: close browser", "error", err)
	}
	slog.Info("scraper shutdown complete")
}
