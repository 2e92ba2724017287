package extractor

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/egor6820/price-tracker-server/normalize"
)

// maxNameRunes bounds heuristic name candidates; longer text is usually a
// description.
const maxNameRunes = 200

// nameClassIDPatterns mark elements that likely hold the product title.
var nameClassIDPatterns = []string{"title", "product", "name", "назва", "название"}

// heuristicName runs the name sources in priority order and returns the
// first valid one.
func heuristicName(doc *goquery.Document, products []Product, best *candidate) (string, bool) {
	for _, key := range []string{"og:title", "twitter:title"} {
		if v := metaContent(doc, key); acceptName(v) {
			return normalize.CleanText(v), true
		}
	}
	for _, p := range products {
		if acceptName(p.Name) {
			return normalize.CleanText(p.Name), true
		}
	}
	for _, tag := range []string{"h1", "h2", "h3"} {
		var found string
		doc.Find(tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if t := normalize.CleanText(s.Text()); acceptName(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	if name, ok := shortestClassName(doc); ok {
		return name, true
	}
	if best != nil {
		if name, ok := nameNearPrice(best.sel); ok {
			return name, true
		}
	}
	if t := normalize.CleanText(doc.Find("title").First().Text()); acceptName(t) {
		return t, true
	}
	return firstNameLine(visibleText(doc))
}

func acceptName(text string) bool {
	t := normalize.CleanText(text)
	return utf8.RuneCountInString(t) <= maxNameRunes && normalize.ValidName(t)
}

// shortestClassName returns the shortest valid text among elements whose
// class or id matches a title keyword.
func shortestClassName(doc *goquery.Document) (string, bool) {
	best := ""
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "script", "style", "noscript", "template", "meta", "link":
			return
		}
		if !classIDMatches(s, nameClassIDPatterns) {
			return
		}
		t := normalize.CleanText(s.Text())
		if !acceptName(t) || normalize.HasCurrency(t) {
			return
		}
		if best == "" || utf8.RuneCountInString(t) < utf8.RuneCountInString(best) {
			best = t
		}
	})
	return best, best != ""
}

// nameNearPrice walks up from the price element and returns the first
// heading or title-like text found inside an ancestor.
func nameNearPrice(price *goquery.Selection) (string, bool) {
	const maxDepth = 5
	scope := price.Parent()
	for depth := 0; depth < maxDepth && scope.Length() > 0; depth++ {
		var found string
		scope.Find("h1, h2, h3, h4, h5, h6, a[title], [class*='title'], [class*='name']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := normalize.CleanText(s.Text())
			if t == "" {
				t = normalize.CleanText(s.AttrOr("title", ""))
			}
			if acceptName(t) && !normalize.HasCurrency(t) {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
		scope = scope.Parent()
	}
	return "", false
}

// firstNameLine scans visible text line by line for a short,
// non-placeholder line without a currency marker.
func firstNameLine(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		t := normalize.CleanText(line)
		if utf8.RuneCountInString(t) > 120 {
			continue
		}
		if normalize.HasCurrency(t) || !acceptName(t) {
			continue
		}
		return t, true
	}
	return "", false
}
