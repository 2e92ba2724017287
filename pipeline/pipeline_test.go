package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor6820/price-tracker-server/cache"
	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/engine"
	"github.com/egor6820/price-tracker-server/extractor"
	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/trust"
)

const productURL = "https://shop.example/p/widget"

const widgetPage = `<html><head><title>Widget | Shop</title>
<script type="application/ld+json">{"name": "Widget", "offers": {"price": "199.99", "priceCurrency":"USD"}}</script>
</head><body></body></html>`

const noPricePage = `<html><head><title>Widget | Shop</title></head>
<body><h1>Widget</h1><p>Скоро в продажу</p></body></html>`

type stubEngine struct {
	name   string
	method models.FetchMethod
	fetch  func(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error)
	calls  atomic.Int32
}

func (e *stubEngine) Name() string               { return e.name }
func (e *stubEngine) Method() models.FetchMethod { return e.method }

func (e *stubEngine) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	e.calls.Add(1)
	return e.fetch(ctx, req)
}

func serve(html, title string) func(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return func(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
		return &engine.FetchResult{HTML: html, Title: title}, nil
	}
}

func fail(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
	return nil, errors.New("connection refused")
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

type harness struct {
	light    *stubEngine
	rendered *stubEngine
	memory   *engine.DomainMemory
	lastGood *cache.LastGood
	clock    *fakeClock
	orch     *Orchestrator
}

func newHarness(t *testing.T, light, rendered func(context.Context, *engine.FetchRequest) (*engine.FetchResult, error)) *harness {
	t.Helper()
	h := &harness{
		light:    &stubEngine{name: "http", method: models.FetchHTTP, fetch: light},
		rendered: &stubEngine{name: "rendered", method: models.FetchRendered, fetch: rendered},
		memory:   engine.NewDomainMemory(time.Hour),
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.lastGood = cache.New(7*24*time.Hour, cache.WithClock(h.clock.Now))
	t.Cleanup(func() {
		h.memory.Stop()
		h.lastGood.Close()
	})

	fetcher := engine.NewFetcher([]engine.Strategy{
		{Engine: h.light, Attempts: 2, MinBytes: 100},
		{Engine: h.rendered, Attempts: 1, MinBytes: 100},
	}, time.Millisecond, h.memory)

	h.orch = New(fetcher,
		extractor.New(extractor.Options{}),
		trust.NewEvaluator(trust.Config{}, nil),
		h.lastGood,
		config.DefaultSelectors(),
	)
	return h
}

func cachedWidget() models.ExtractedResult {
	old := "249"
	return models.ExtractedResult{Name: "Cached Widget", CurrentPrice: "189", OldPrice: &old, InStock: true}
}

func TestExtract_StructuredDataOverLightFetch(t *testing.T) {
	h := newHarness(t, serve(widgetPage, "Widget | Shop"), fail)

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, "199.99", got.CurrentPrice)
	assert.Nil(t, got.OldPrice)
	assert.True(t, got.InStock)
	assert.EqualValues(t, 0, h.rendered.calls.Load())

	entry, ok := h.lastGood.Get(productURL)
	require.True(t, ok, "accepted results must be cached")
	assert.Equal(t, got, entry.Result)
}

func TestExtract_AllStrategiesFailServesCache(t *testing.T) {
	h := newHarness(t, fail, fail)
	h.lastGood.Put(productURL, cachedWidget(), "")
	h.clock.Advance(2 * time.Hour)

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, cachedWidget(), got)
	assert.EqualValues(t, 2, h.light.calls.Load())
	assert.EqualValues(t, 1, h.rendered.calls.Load())
}

func TestExtract_ExpiredCacheIsIgnored(t *testing.T) {
	h := newHarness(t, fail, fail)
	h.lastGood.Put(productURL, cachedWidget(), "")
	h.clock.Advance(8 * 24 * time.Hour)

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, models.Sentinel(), got)
}

func TestExtract_BlockedRenderedPageIsAFailure(t *testing.T) {
	h := newHarness(t, fail, serve(`<html><head><title>shop.example</title></head><body>`+
		`<div>nothing to see here, keep scrolling please</div></body></html>`, "shop.example"))

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, models.UnknownName, got.Name)
	assert.Equal(t, models.UnknownPrice, got.CurrentPrice)
	assert.False(t, got.InStock)

	h.lastGood.Put(productURL, cachedWidget(), "")
	assert.Equal(t, cachedWidget(), h.orch.Extract(context.Background(), productURL))
}

func TestExtract_SuspectRenderedResultPrefersCache(t *testing.T) {
	h := newHarness(t, serve(noPricePage, "Widget | Shop"), serve(noPricePage, "Widget | Shop"))
	h.lastGood.Put(productURL, cachedWidget(), "")

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, cachedWidget(), got)
	assert.EqualValues(t, 1, h.rendered.calls.Load())
}

func TestExtract_SuspectResultsAreNeverCached(t *testing.T) {
	h := newHarness(t, serve(noPricePage, "Widget | Shop"), serve(noPricePage, "Widget | Shop"))

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, models.Sentinel(), got)
	assert.Equal(t, 0, h.lastGood.Len())
}

func TestExtract_EscalatesAndRemembersRendering(t *testing.T) {
	h := newHarness(t, serve("<html></html>", ""), serve(widgetPage, "Widget | Shop"))

	got := h.orch.Extract(context.Background(), productURL)
	assert.Equal(t, "199.99", got.CurrentPrice)
	assert.Equal(t, "rendered", h.memory.Get("shop.example"))

	// The next request for the domain starts with rendering.
	got = h.orch.Extract(context.Background(), "https://shop.example/p/other")
	assert.Equal(t, "199.99", got.CurrentPrice)
	assert.EqualValues(t, 2, h.light.calls.Load())
	assert.EqualValues(t, 2, h.rendered.calls.Load())
}

func TestExtract_PanicFallsBackToCache(t *testing.T) {
	h := newHarness(t, func(context.Context, *engine.FetchRequest) (*engine.FetchResult, error) {
		panic("parser exploded")
	}, fail)

	assert.NotPanics(t, func() {
		assert.Equal(t, models.Sentinel(), h.orch.Extract(context.Background(), productURL))
	})

	h.lastGood.Put(productURL, cachedWidget(), "")
	assert.Equal(t, cachedWidget(), h.orch.Extract(context.Background(), productURL))
}

func TestExtract_InvalidURL(t *testing.T) {
	h := newHarness(t, serve(widgetPage, "Widget"), fail)

	for _, raw := range []string{"", "not a url", "ftp://shop.example/x", "https:///missing-host"} {
		assert.Equal(t, models.Sentinel(), h.orch.Extract(context.Background(), raw), raw)
	}
	assert.EqualValues(t, 0, h.light.calls.Load())
}

func TestExtract_RecurringSuspectPriceIsGlobal(t *testing.T) {
	// Every page shows the same currency-less low number under a domain name.
	page := `<html><head><title>Shop</title></head><body><h1>shop.example</h1>` +
		`<p>Short description of the item.</p><span class="price">15</span></body></html>`
	h := newHarness(t, serve(page, "Shop"), fail)

	for _, u := range []string{
		"https://shop.example/p/1",
		"https://shop.example/p/2",
		"https://shop.example/p/3",
	} {
		assert.Equal(t, models.Sentinel(), h.orch.Extract(context.Background(), u))
	}
	assert.Equal(t, 0, h.lastGood.Len())
}
