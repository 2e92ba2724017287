package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/egor6820/price-tracker-server/config"
	"github.com/egor6820/price-tracker-server/normalize"
)

// RuleText evaluates one rule against a static document and returns the
// text it points at. CSS rules read the attribute named by Attr, the content
// of a matched <meta>, or the element text, in that order.
func RuleText(doc *goquery.Document, r config.Rule) (string, bool) {
	if r.IsMeta() {
		v := metaContent(doc, r.Meta)
		return v, v != ""
	}

	sel := doc.Find(r.CSS).First()
	if sel.Length() == 0 {
		return "", false
	}
	var text string
	switch {
	case r.Attr != "":
		text = sel.AttrOr(r.Attr, "")
	case goquery.NodeName(sel) == "meta":
		text = sel.AttrOr("content", "")
	default:
		text = sel.Text()
		if strings.TrimSpace(text) == "" {
			text = sel.AttrOr("content", sel.AttrOr("value", ""))
		}
	}
	text = normalize.CleanText(text)
	return text, text != ""
}

// DomainName returns the first rule result that is a valid name.
func DomainName(doc *goquery.Document, rules []config.Rule) (string, bool) {
	for _, r := range rules {
		text, ok := RuleText(doc, r)
		if ok && normalize.ValidName(text) {
			return text, true
		}
	}
	return "", false
}

// DomainPrice returns the canonical value and raw text of the first rule
// whose target is price-like, normalizes, and passes the
// currency-or-magnitude policy.
func (e *Extractor) DomainPrice(doc *goquery.Document, rules []config.Rule) (string, string, bool) {
	for _, r := range rules {
		text, ok := RuleText(doc, r)
		if !ok {
			continue
		}
		if canonical, ok := e.AdmitPrice(text); ok {
			return canonical, text, true
		}
	}
	return "", "", false
}

// DomainOldPrice returns the first old-price rule that normalizes. Old
// prices sit next to a current price so the magnitude policy is not applied.
func DomainOldPrice(doc *goquery.Document, rules []config.Rule) string {
	for _, r := range rules {
		text, ok := RuleText(doc, r)
		if !ok || !normalize.PriceLike(text) {
			continue
		}
		if canonical, ok := normalize.Price(text); ok {
			return canonical
		}
	}
	return ""
}
