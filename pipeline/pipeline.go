// Package pipeline runs one extraction request end to end: fetch with the
// planned strategies, extract, judge, and fall back to the last known good
// result or the sentinel. Extract never returns an error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/egor6820/price-tracker-server/cache"
	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/engine"
	"github.com/egor6820/price-tracker-server/extractor"
	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/normalize"
	"github.com/egor6820/price-tracker-server/trust"
)

// Orchestrator owns the per-request state machine. The cache and the
// evaluator's registry are shared by all requests on the same Orchestrator.
type Orchestrator struct {
	fetcher   *engine.Fetcher
	extractor *extractor.Extractor
	evaluator *trust.Evaluator
	lastGood  *cache.LastGood
	selectors *config.SelectorRegistry
}

// New creates an Orchestrator. selectors may be nil.
func New(
	fetcher *engine.Fetcher,
	ex *extractor.Extractor,
	evaluator *trust.Evaluator,
	lastGood *cache.LastGood,
	selectors *config.SelectorRegistry,
) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		extractor: ex,
		evaluator: evaluator,
		lastGood:  lastGood,
		selectors: selectors,
	}
}

// Extract returns the best result for rawURL. Failures end in a fresh
// cached result or the sentinel, including panics raised anywhere below.
func (o *Orchestrator) Extract(ctx context.Context, rawURL string) (result models.ExtractedResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic recovered",
				"url", rawURL,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = o.fallback(rawURL, "panic")
		}
	}()

	if !validURL(rawURL) {
		slog.Warn("rejecting invalid url", "url", rawURL)
		return models.Sentinel()
	}

	result = o.run(ctx, rawURL)
	slog.Info("extraction finished",
		"url", rawURL,
		"name", result.Name,
		"price", result.CurrentPrice,
		"oldPrice", result.OldPriceValue(),
		"inStock", result.InStock,
		"elapsed", time.Since(start).String(),
	)
	return result
}

func (o *Orchestrator) run(ctx context.Context, rawURL string) models.ExtractedResult {
	ds, _ := o.selectors.Lookup(rawURL)

	for _, s := range o.fetcher.Plan(rawURL) {
		name := s.Engine.Name()

		// FETCH
		res, doc, err := o.fetcher.Fetch(ctx, s, &engine.FetchRequest{URL: rawURL, Selectors: ds})
		if err != nil {
			slog.Info("strategy failed, escalating",
				"url", rawURL, "engine", name, "code", models.ErrorCode(err), "error", err)
			continue
		}

		// EXTRACT
		fields := o.extractor.Extract(doc.HTML, ds, res.Harvest)
		slog.Debug("extracted",
			"url", rawURL, "engine", name,
			"name", fields.Name, "nameSource", fields.NameSource,
			"price", fields.Price, "priceSource", fields.PriceSource)

		// VALIDATE
		verdict := o.evaluator.EvaluateNormalized(rawURL, fields.Name, fields.Price,
			normalize.HasCurrency(fields.PriceText))
		if !verdict.Suspect {
			out := toResult(fields)
			o.lastGood.Put(rawURL, out, doc.HTML)
			o.rememberStrategy(rawURL, name)
			return out
		}
		slog.Info("suspect result",
			"url", rawURL, "engine", name, "reason", verdict.Reason, "price", verdict.Price)

		// A suspect rendered read loses to a fresh known good result.
		if doc.FetchMethod == models.FetchRendered {
			if e, ok := o.lastGood.Get(rawURL); ok {
				slog.Warn("serving last known good over suspect rendered result",
					"url", rawURL, "storedAt", e.StoredAt)
				return e.Result
			}
		}
	}
	return o.fallback(rawURL, "strategies exhausted")
}

// rememberStrategy keeps the domain memory in line with the strategy that
// just produced a trusted result.
func (o *Orchestrator) rememberStrategy(rawURL, engineName string) {
	if engineName == o.fetcher.Lead() {
		o.fetcher.Forget(rawURL)
		return
	}
	o.fetcher.Remember(rawURL, engineName)
}

func (o *Orchestrator) fallback(rawURL, why string) models.ExtractedResult {
	if e, ok := o.lastGood.Get(rawURL); ok {
		slog.Warn("serving last known good", "url", rawURL, "reason", why, "storedAt", e.StoredAt)
		return e.Result
	}
	slog.Warn("returning sentinel result", "url", rawURL, "reason", why)
	return models.Sentinel()
}

func toResult(f extractor.Fields) models.ExtractedResult {
	r := models.ExtractedResult{
		Name:         f.Name,
		CurrentPrice: f.Price,
		InStock:      f.InStock,
	}
	if r.Name == "" {
		r.Name = models.UnknownName
	}
	if r.CurrentPrice == "" {
		r.CurrentPrice = models.UnknownPrice
	}
	if f.OldPrice != "" {
		old := f.OldPrice
		r.OldPrice = &old
	}
	return r
}

func validURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
