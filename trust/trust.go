// Package trust decides whether an extracted result is plausible enough to
// return and cache.
package trust

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/normalize"
)

// Reason classifies why a result is suspect.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonMissingPrice    Reason = "missing_price"
	ReasonRecurringPrice  Reason = "recurring_price"
	ReasonLowMagnitude    Reason = "low_magnitude_no_currency"
	ReasonMissingName     Reason = "missing_name"
	ReasonPlaceholderName Reason = "placeholder_name"
	ReasonDomainName      Reason = "domain_as_name"
)

// Verdict is the outcome of one evaluation.
type Verdict struct {
	Suspect bool
	Reason  Reason
	// Price is the normalized price, empty when it did not normalize.
	Price string
}

// Config holds the evaluator thresholds.
type Config struct {
	MinMagnitude       float64 // default: 20
	RecurringThreshold int     // default: 3
}

// Evaluator judges extraction results. The registry it writes to is shared
// by every request that uses the same Evaluator.
type Evaluator struct {
	cfg      Config
	registry *Registry
}

// NewEvaluator creates an Evaluator. A nil registry gets a fresh one.
func NewEvaluator(cfg Config, registry *Registry) *Evaluator {
	if cfg.MinMagnitude <= 0 {
		cfg.MinMagnitude = normalize.DefaultMinMagnitude
	}
	if cfg.RecurringThreshold <= 0 {
		cfg.RecurringThreshold = 3
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Evaluator{cfg: cfg, registry: registry}
}

// Registry returns the suspicious price registry.
func (e *Evaluator) Registry() *Registry { return e.registry }

// Evaluate checks (rawURL, name, priceText). Every suspect verdict that has
// a normalizable price is recorded in the registry, whatever the caller
// does with the result.
func (e *Evaluator) Evaluate(rawURL, name, priceText string) Verdict {
	if priceText == "" || priceText == models.UnknownPrice || normalize.IsPlaceholder(priceText) {
		return e.record(rawURL, Verdict{Suspect: true, Reason: ReasonMissingPrice})
	}
	price, ok := normalize.Price(priceText)
	if !ok {
		return e.record(rawURL, Verdict{Suspect: true, Reason: ReasonMissingPrice})
	}
	return e.EvaluateNormalized(rawURL, name, price, normalize.HasCurrency(priceText))
}

// EvaluateNormalized is Evaluate for a price that is already canonical,
// with hasCurrency telling whether its source text carried a currency
// marker.
func (e *Evaluator) EvaluateNormalized(rawURL, name, price string, hasCurrency bool) Verdict {
	return e.record(rawURL, e.evaluate(rawURL, name, price, hasCurrency))
}

func (e *Evaluator) record(rawURL string, v Verdict) Verdict {
	if !v.Suspect {
		return v
	}
	if v.Price != "" {
		e.registry.Record(v.Price, rawURL)
	}
	slog.Debug("trust: suspect result", "url", rawURL, "reason", v.Reason, "price", v.Price)
	return v
}

func (e *Evaluator) evaluate(rawURL, name, price string, hasCurrency bool) Verdict {
	value, ok := normalize.Value(price)
	if price == "" || !ok || value <= 0 {
		return Verdict{Suspect: true, Reason: ReasonMissingPrice}
	}

	if e.registry.OthersCount(price, rawURL) >= e.cfg.RecurringThreshold {
		return Verdict{Suspect: true, Reason: ReasonRecurringPrice, Price: price}
	}

	if !hasCurrency && value < e.cfg.MinMagnitude {
		return Verdict{Suspect: true, Reason: ReasonLowMagnitude, Price: price}
	}

	if r := nameReason(rawURL, name); r != ReasonNone {
		return Verdict{Suspect: true, Reason: r, Price: price}
	}
	return Verdict{Price: price}
}

// reBareDomain matches a lone host-like token such as "shop.example.com".
var reBareDomain = regexp.MustCompile(`(?i)^(www\.)?[a-z0-9-]+(\.[a-z0-9-]+)+$`)

func nameReason(rawURL, name string) Reason {
	n := strings.ToLower(normalize.CleanText(name))
	if n == "" || name == models.UnknownName {
		return ReasonMissingName
	}
	if normalize.IsPlaceholder(n) {
		return ReasonPlaceholderName
	}
	if reBareDomain.MatchString(n) {
		return ReasonDomainName
	}
	host := Host(rawURL)
	if host == "" {
		return ReasonNone
	}
	if n == host || strings.Contains(n, host) {
		return ReasonDomainName
	}
	if label := firstLabel(host); label != "" && n == label {
		return ReasonDomainName
	}
	return ReasonNone
}

// Host returns the lower-cased host of rawURL without a leading "www.".
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func firstLabel(host string) string {
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}
