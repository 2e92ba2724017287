package extractor

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/egor6820/price-tracker-server/normalize"
)

// Signal weights for the price candidate scorer.
const (
	wCurrency     = 200
	wPriceClassID = 120
	wItempropMeta = 100
	wMetaProperty = 80
	wShortText    = 10
	wNegativeWord = -80
)

// maxCandidateRunes bounds the text of a leaf-like candidate element.
const maxCandidateRunes = 80

// candidateTags are the text-bearing tags enumerated as price candidates.
const candidateTags = "span, div, p, strong, b, em, i, ins, del, s, bdi, td, dd, li, label, data, output, meta"

// priceClassIDPatterns are substrings in class/id attributes that mark a
// price container.
var priceClassIDPatterns = []string{
	"price", "cost", "amount", "sale", "currency", "ціна", "цена", "cena",
	"preis", "prix", "precio", "prezzo", "uah", "grn",
}

// negativeWordPatterns are stems in candidate text that point at reviews,
// ratings, quantities or weights.
var negativeWordPatterns = []string{
	"відгук", "отзыв", "review", "rating", "рейтинг", "оцінк", "оценк",
	"зірк", "звезд", "star", "votes", "голос", "кількість", "количество",
	"quantity", "вага", "вес ", "weight", "гарант", "warranty",
}

// reNegativeUnit matches short unit tokens as whole words.
var reNegativeUnit = regexp.MustCompile(`(?i)(^|[^\p{L}])(qty|pcs|шт|kg|кг|ml|мл)\.?($|[^\p{L}])`)

// priceAttrs are attributes that may carry a price, explicit ones first.
var priceAttrs = []string{
	"data-price", "data-price-amount", "data-amount", "data-value", "content", "value",
}

// oldClassIDPatterns mark a previous/crossed-out price.
var oldClassIDPatterns = []string{
	"old", "prev", "was", "strike", "crossed", "regular", "before", "compare", "стар",
}

type candidate struct {
	sel        *goquery.Selection
	text       string
	value      string
	score      int
	currency   bool
	priceClass bool
	children   int
}

// bestCandidate ranks every candidate element and returns the highest
// scoring admissible one, or nil.
func (e *Extractor) bestCandidate(doc *goquery.Document) *candidate {
	cands := collectCandidates(doc)
	// Ties go to the leafier element so a container never shadows the
	// price node it wraps.
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].children < cands[j].children
	})

	for i := range cands {
		c := &cands[i]
		// Brevity alone is not evidence of a price.
		if c.score <= wShortText {
			break
		}
		if !c.currency && !c.priceClass {
			v, _ := normalize.Value(c.value)
			if v < e.minMagnitude {
				slog.Debug("extractor: candidate below magnitude", "text", c.text, "score", c.score)
				continue
			}
		}
		return c
	}
	return nil
}

func collectCandidates(doc *goquery.Document) []candidate {
	var out []candidate
	doc.Find(candidateTags).Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("script, style, noscript, template").Length() > 0 {
			return
		}
		text, ok := candidateText(s)
		if !ok {
			return
		}
		value, ok := normalize.Price(text)
		if !ok {
			return
		}
		c := candidate{sel: s, text: text, value: value, children: s.Children().Length()}
		c.score, c.currency, c.priceClass = scoreCandidate(s, text)
		out = append(out, c)
	})
	return out
}

// candidateText returns the visible text of a leaf-like element or its most
// price-like attribute. Explicit price attributes win over generic ones,
// which win over the text.
func candidateText(s *goquery.Selection) (string, bool) {
	for _, attr := range priceAttrs {
		if v, ok := s.Attr(attr); ok {
			v = normalize.CleanText(v)
			if normalize.PriceLike(v) {
				return v, true
			}
		}
	}
	if goquery.NodeName(s) == "meta" {
		return "", false
	}
	if s.Children().Length() > 3 {
		return "", false
	}
	text := normalize.CleanText(s.Text())
	if text == "" || utf8.RuneCountInString(text) > maxCandidateRunes {
		return "", false
	}
	if !normalize.PriceLike(text) {
		return "", false
	}
	return text, true
}

// scoreCandidate applies the weighted signals to one element.
func scoreCandidate(s *goquery.Selection, text string) (score int, currency, priceClass bool) {
	if normalize.HasCurrency(text) {
		score += wCurrency
		currency = true
	}
	if classIDMatches(s, priceClassIDPatterns) {
		score += wPriceClassID
		priceClass = true
	}
	if v, ok := s.Attr("itemprop"); ok && strings.Contains(strings.ToLower(v), "price") {
		score += wItempropMeta
	}
	if goquery.NodeName(s) == "meta" {
		if v, ok := s.Attr("property"); ok && strings.Contains(strings.ToLower(v), "price") {
			score += wMetaProperty
		}
	}
	if len(strings.Fields(text)) <= 4 {
		score += wShortText
	}
	if hasNegativeWord(text) {
		score += wNegativeWord
	}
	return score, currency, priceClass
}

func hasNegativeWord(text string) bool {
	t := strings.ToLower(text)
	for _, w := range negativeWordPatterns {
		if strings.Contains(t, w) {
			return true
		}
	}
	return reNegativeUnit.MatchString(t)
}

// classIDMatches scans the element's class and id attributes for any of
// the patterns.
func classIDMatches(s *goquery.Selection, patterns []string) bool {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	combined := strings.ToLower(class + " " + id)
	if strings.TrimSpace(combined) == "" {
		return false
	}
	for _, pat := range patterns {
		if strings.Contains(combined, pat) {
			return true
		}
	}
	return false
}

// oldPriceNear looks for a previous price among the elements sharing the
// accepted candidate's parent (then grandparent). A match normalizes to a
// higher value and carries a currency marker or an old/strike marker.
func oldPriceNear(c *candidate) string {
	current, _ := normalize.Value(c.value)
	scope := c.sel.Parent()
	for depth := 0; depth < 2 && scope.Length() > 0; depth++ {
		var found string
		scope.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if s.IsSelection(c.sel) || s.Children().Length() > 3 {
				return true
			}
			// Skip the candidate's own ancestors and descendants.
			if s.Find("*").IsSelection(c.sel) || c.sel.Find("*").IsSelection(s) {
				return true
			}
			text := normalize.CleanText(s.Text())
			if text == "" || utf8.RuneCountInString(text) > maxCandidateRunes {
				return true
			}
			marked := classIDMatches(s, oldClassIDPatterns) || isStrikeTag(s)
			if !marked && !normalize.HasCurrency(text) {
				return true
			}
			canonical, ok := normalize.Price(text)
			if !ok || canonical == c.value {
				return true
			}
			if v, _ := normalize.Value(canonical); v <= current {
				return true
			}
			found = canonical
			return false
		})
		if found != "" {
			return found
		}
		scope = scope.Parent()
	}
	return ""
}

func isStrikeTag(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "del", "s", "strike":
		return true
	}
	return false
}
