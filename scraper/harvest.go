package scraper

import (
	"context"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/normalize"
	"github.com/egor6820/price-tracker-server/poll"
)

// ruleJS evaluates one domain rule in the page. It returns null when the
// target does not exist and the (whitespace-collapsed) text otherwise.
const ruleJS = `(css, attr, meta) => {
	const clean = (s) => (s || '').replace(/\s+/g, ' ').trim();
	let el = null;
	if (meta) {
		for (const a of ['property', 'name', 'itemprop']) {
			el = document.querySelector('meta[' + a + '="' + CSS.escape(meta) + '"]');
			if (el) break;
		}
		return el ? clean(el.getAttribute('content')) : null;
	}
	el = document.querySelector(css);
	if (!el) return null;
	if (attr) return clean(el.getAttribute(attr));
	if (el.tagName === 'META') return clean(el.getAttribute('content'));
	let t = clean(el.innerText || el.textContent);
	if (!t) t = clean(el.getAttribute('content') || el.getAttribute('value'));
	return t;
}`

// liveRuleText evaluates r on the rendered page. present is false when the
// rule's target is missing or the page could not be queried.
func liveRuleText(p *rod.Page, r config.Rule) (text string, present bool) {
	res, err := p.Eval(ruleJS, r.CSS, r.Attr, r.Meta)
	if err != nil || res.Value.Nil() {
		return "", false
	}
	return normalize.CleanText(res.Value.Str()), true
}

// harvest reads name, price and old price with the domain rules while the
// page is live. Name and price rules are polled so values populated after
// load are still picked up; the first rule that settles wins.
func (s *Scraper) harvest(ctx context.Context, p *rod.Page, ds *config.DomainSelectors) models.Harvest {
	var h models.Harvest
	h.Name = s.pollRules(ctx, p, ds.Name, normalize.ValidName)
	h.PriceText = s.pollRules(ctx, p, ds.Price, settledPrice)

	for _, r := range ds.OldPrice {
		if text, ok := liveRuleText(p, r); ok && settledPrice(text) {
			h.OldPriceText = text
			break
		}
	}
	return h
}

// settledPrice reports whether text is a non-placeholder number.
func settledPrice(text string) bool {
	if !normalize.PriceLike(text) {
		return false
	}
	_, ok := normalize.Price(text)
	return ok
}

func (s *Scraper) pollRules(ctx context.Context, p *rod.Page, rules []config.Rule, accept func(string) bool) string {
	for _, r := range rules {
		if _, present := liveRuleText(p, r); !present {
			continue
		}
		text, ok := poll.Until(ctx, s.renderCfg.PollInterval, s.renderCfg.SelectorWait,
			func(context.Context) (string, bool) {
				t, _ := liveRuleText(p, r)
				return t, accept(t)
			})
		if ok {
			return text
		}
		slog.Debug("rule did not settle", "rule", r.String(), "last", text)
		if ctx.Err() != nil {
			return ""
		}
	}
	return ""
}
