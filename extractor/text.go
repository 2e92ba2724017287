package extractor

import (
	"regexp"
	"strings"

	"github.com/egor6820/price-tracker-server/normalize"
)

// currencyWindow is how many bytes around a bare number are searched for a
// currency token or a count/rating word.
const currencyWindow = 16

// hspace is the horizontal whitespace allowed inside and around a number.
const hspace = `\t \x{00A0}\x{202F}\x{2009}`

var (
	// reNumberCurrency matches a number followed by a currency token on the
	// same line. Latin codes must end on a word boundary ("rubber" is no rub).
	reNumberCurrency = regexp.MustCompile(`(?i)(\d[\d.,` + hspace + `]*)[` + hspace + `]*(₴|грн|\$|€|£|₽|руб|zł|(?:uah|usd|eur|gbp|rub|pln)\b)`)
	// reCurrencyNumber matches a currency symbol followed by a number.
	reCurrencyNumber = regexp.MustCompile(`(₴|\$|€|£|₽)[` + hspace + `]*(\d[\d.,` + hspace + `]*)`)
	// reBareNumber matches any number with group separators.
	reBareNumber = regexp.MustCompile(`\d[\d.,` + hspace + `]*`)
)

// textPrice is the last resort over the page's visible text: first a
// number adjacent to a currency token, then the first number that is not
// labelled as a count and either reaches the magnitude threshold or has a
// currency token nearby.
func (e *Extractor) textPrice(text string) (string, string, bool) {
	if text == "" {
		return "", "", false
	}

	type hit struct {
		pos  int
		text string
	}
	var hits []hit
	if loc := reNumberCurrency.FindStringIndex(text); loc != nil {
		hits = append(hits, hit{loc[0], text[loc[0]:loc[1]]})
	}
	if loc := reCurrencyNumber.FindStringIndex(text); loc != nil {
		hits = append(hits, hit{loc[0], text[loc[0]:loc[1]]})
	}
	if len(hits) == 2 && hits[1].pos < hits[0].pos {
		hits[0], hits[1] = hits[1], hits[0]
	}
	for _, h := range hits {
		if placeholderLine(text, h.pos) {
			continue
		}
		if canonical, ok := normalize.Price(h.text); ok {
			return canonical, strings.TrimSpace(h.text), true
		}
	}

	for _, loc := range reBareNumber.FindAllStringIndex(text, -1) {
		before := window(text, loc[0]-currencyWindow, currencyWindow)
		after := window(text, loc[1], currencyWindow)
		if hasNegativeWord(before) || hasNegativeWord(after) {
			continue
		}
		raw := text[loc[0]:loc[1]]
		canonical, ok := normalize.Price(raw)
		if !ok {
			continue
		}
		around := window(text, loc[0]-currencyWindow, loc[1]-loc[0]+2*currencyWindow)
		if normalize.HasCurrency(around) {
			return canonical, strings.TrimSpace(around), true
		}
		if v, _ := normalize.Value(canonical); v >= e.minMagnitude {
			return canonical, strings.TrimSpace(raw), true
		}
		return "", "", false
	}
	return "", "", false
}

// placeholderLine reports whether the line holding pos is placeholder text.
func placeholderLine(text string, pos int) bool {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	end := strings.IndexByte(text[pos:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += pos
	}
	return normalize.IsPlaceholder(text[start:end])
}

// window returns up to n bytes of text starting at start, clamped to the
// string and widened to rune boundaries.
func window(text string, start, n int) string {
	if start < 0 {
		n += start
		start = 0
	}
	end := start + n
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return ""
	}
	for start > 0 && !isRuneStart(text[start]) {
		start--
	}
	for end < len(text) && !isRuneStart(text[end]) {
		end++
	}
	return text[start:end]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
