// Package extractor pulls a product's name, price, old price and stock
// status out of an HTML document. Sources are tried in priority order:
// structured data, domain selector rules (live harvest first, then the
// static DOM), scored DOM candidates, and finally a regex pass over the
// visible page text. Each field short-circuits on its first admissible value.
package extractor

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/models"
	"github.com/egor6820/price-tracker-server/normalize"
)

// Source names where a field value came from.
type Source string

const (
	SourceNone       Source = ""
	SourceStructured Source = "structured"
	SourceHarvest    Source = "harvest"
	SourceDomain     Source = "domain"
	SourceHeuristic  Source = "heuristic"
	SourceText       Source = "text"
)

// Fields is the outcome of one extraction pass. Empty strings mean the
// field was not found; the caller decides on sentinels.
type Fields struct {
	Name        string
	NameSource  Source
	Price       string // canonical decimal
	PriceText   string // raw text the price was read from
	PriceSource Source
	OldPrice    string
	InStock     bool
}

// Options tunes admissibility.
type Options struct {
	// MinMagnitude is the value below which a number without a currency
	// marker is not accepted as a price.
	MinMagnitude float64
}

// Extractor runs the extraction cascade. It is stateless and safe for
// concurrent use.
type Extractor struct {
	minMagnitude float64
}

// New creates an Extractor. A zero MinMagnitude uses the package default.
func New(opts Options) *Extractor {
	if opts.MinMagnitude <= 0 {
		opts.MinMagnitude = normalize.DefaultMinMagnitude
	}
	return &Extractor{minMagnitude: opts.MinMagnitude}
}

// MinMagnitude returns the configured magnitude threshold.
func (e *Extractor) MinMagnitude() float64 { return e.minMagnitude }

// AdmitPrice normalizes text and applies the currency-or-magnitude policy:
// a value without a currency marker must reach the magnitude threshold.
func (e *Extractor) AdmitPrice(text string) (string, bool) {
	return AdmitPrice(text, e.minMagnitude)
}

// AdmitPrice is the package-level form of Extractor.AdmitPrice.
func AdmitPrice(text string, minMagnitude float64) (string, bool) {
	if !normalize.PriceLike(text) {
		return "", false
	}
	canonical, ok := normalize.Price(text)
	if !ok {
		return "", false
	}
	if normalize.HasCurrency(text) {
		return canonical, true
	}
	v, _ := normalize.Value(canonical)
	return canonical, v >= minMagnitude
}

// Extract runs the full cascade over rawHTML. ds may be nil when no rules
// are configured for the domain; harvest holds values read live from a
// rendered page and may be empty.
func (e *Extractor) Extract(rawHTML string, ds *config.DomainSelectors, harvest models.Harvest) Fields {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		slog.Debug("extractor: parse html", "error", err)
		doc = nil
	}
	return e.ExtractDocument(doc, ds, harvest)
}

// ExtractDocument is Extract over an already parsed document. doc may be nil,
// in which case only the harvest is consulted.
func (e *Extractor) ExtractDocument(doc *goquery.Document, ds *config.DomainSelectors, harvest models.Harvest) Fields {
	f := Fields{InStock: true}

	var products []Product
	if doc != nil {
		products = Structured(doc)
	}

	// Structured data is author-declared and wins outright.
	stockKnown := false
	for _, p := range products {
		if f.Name == "" && normalize.ValidName(p.Name) {
			f.Name, f.NameSource = normalize.CleanText(p.Name), SourceStructured
		}
		if f.Price == "" && p.Price != "" {
			text := p.Price
			if p.Currency != "" {
				text += " " + p.Currency
			}
			if canonical, ok := e.admitStructured(p.Price, text); ok {
				f.Price, f.PriceText, f.PriceSource = canonical, text, SourceStructured
			}
		}
		if !stockKnown && p.Availability != "" {
			f.InStock, stockKnown = availabilityInStock(p.Availability), true
		}
	}

	// Live harvest from the rendering session.
	if f.Name == "" && normalize.ValidName(harvest.Name) {
		f.Name, f.NameSource = normalize.CleanText(harvest.Name), SourceHarvest
	}
	if f.Price == "" && harvest.PriceText != "" {
		if canonical, ok := e.AdmitPrice(harvest.PriceText); ok {
			f.Price, f.PriceText, f.PriceSource = canonical, harvest.PriceText, SourceHarvest
		}
	}
	if harvest.OldPriceText != "" {
		if canonical, ok := normalize.Price(harvest.OldPriceText); ok {
			f.OldPrice = canonical
		}
	}

	if doc == nil {
		f.OldPrice = dropEqual(f.OldPrice, f.Price)
		return f
	}

	// Static domain rules.
	if ds != nil {
		if f.Name == "" {
			if name, ok := DomainName(doc, ds.Name); ok {
				f.Name, f.NameSource = name, SourceDomain
			}
		}
		if f.Price == "" {
			if canonical, text, ok := e.DomainPrice(doc, ds.Price); ok {
				f.Price, f.PriceText, f.PriceSource = canonical, text, SourceDomain
			}
		}
		if f.OldPrice == "" {
			f.OldPrice = DomainOldPrice(doc, ds.OldPrice)
		}
		if !stockKnown && containsPhrase(visibleText(doc), ds.OutOfStock) {
			f.InStock, stockKnown = false, true
		}
	}

	// Scored candidates.
	var best *candidate
	if f.Price == "" {
		if c := e.bestCandidate(doc); c != nil {
			best = c
			f.Price, f.PriceText, f.PriceSource = c.value, c.text, SourceHeuristic
			// Only a sibling priced above the accepted one counts as the old
			// price; a lower one is usually a per-unit or instalment figure.
			if f.OldPrice == "" {
				f.OldPrice = oldPriceNear(c)
			}
		}
	}

	if f.Name == "" {
		if name, ok := heuristicName(doc, products, best); ok {
			f.Name, f.NameSource = name, SourceHeuristic
		}
	}

	// Raw text regex pass.
	if f.Price == "" {
		if canonical, text, ok := e.textPrice(visibleText(doc)); ok {
			f.Price, f.PriceText, f.PriceSource = canonical, text, SourceText
		}
	}

	if !stockKnown {
		if v, ok := metaAvailability(doc); ok {
			f.InStock = v
		}
	}

	f.OldPrice = dropEqual(f.OldPrice, f.Price)
	return f
}

// admitStructured accepts machine-formatted prices, where "." is always the
// decimal separator, under the same currency-or-magnitude policy.
func (e *Extractor) admitStructured(raw, text string) (string, bool) {
	canonical, ok := normalize.Machine(raw)
	if !ok {
		return "", false
	}
	if normalize.HasCurrency(text) {
		return canonical, true
	}
	v, _ := normalize.Value(canonical)
	return canonical, v >= e.minMagnitude
}

func dropEqual(old, current string) string {
	if old == current {
		return ""
	}
	return old
}

func containsPhrase(text string, phrases []string) bool {
	if text == "" || len(phrases) == 0 {
		return false
	}
	t := strings.ToLower(text)
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" && strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// availabilityInStock maps a schema.org availability value (or free text)
// to a stock flag.
func availabilityInStock(v string) bool {
	t := strings.ToLower(strings.ReplaceAll(v, " ", ""))
	return !strings.Contains(t, "outofstock") &&
		!strings.Contains(t, "notavailable") &&
		!strings.Contains(t, "soldout") &&
		!strings.Contains(t, "discontinued")
}

// visibleText returns the body text with script, style and template
// content removed, one line per block-ish element.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	clone := body.Clone()
	clone.Find("script, style, noscript, template, svg").Remove()

	var b strings.Builder
	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				b.WriteString(c.Text())
				return
			}
			if blockTags[goquery.NodeName(c)] {
				b.WriteByte('\n')
				walk(c)
				b.WriteByte('\n')
				return
			}
			walk(c)
		})
	}
	walk(clone)
	return b.String()
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "tr": true,
	"td": true, "th": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "br": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "aside": true, "main": true,
	"dd": true, "dt": true, "form": true, "table": true, "button": true,
}
