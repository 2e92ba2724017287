package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// currencySymbols are matched as plain substrings.
var currencySymbols = []string{"₴", "$", "€", "£", "₽", "грн", "руб", "zł"}

// reCurrencyWord matches Latin currency codes as whole words.
var reCurrencyWord = regexp.MustCompile(`(?i)\b(uah|usd|eur|gbp|rub|pln)\b`)

// placeholders is the closed "loading / please wait" vocabulary. Any match
// disqualifies a text as a price or a name.
var placeholders = []string{
	"зачекайте",
	"трохи",
	"завантаж",
	"очікуйте",
	"шукаємо",
	"загрузка",
	"подождите",
	"loading",
	"please wait",
}

var (
	reDigit     = regexp.MustCompile(`\d`)
	reOnlyPunct = regexp.MustCompile(`^[\s\.\-,]+$`)
	reEllipsis  = regexp.MustCompile(`\.{3,}`)
)

// HasCurrency reports whether text carries a currency symbol or keyword.
func HasCurrency(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(text)
	for _, sym := range currencySymbols {
		if strings.Contains(t, sym) {
			return true
		}
	}
	return reCurrencyWord.MatchString(t)
}

// IsPlaceholder reports whether text contains loading/please-wait wording.
func IsPlaceholder(text string) bool {
	t := strings.ToLower(text)
	for _, kw := range placeholders {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// HasDigits reports whether text contains at least one decimal digit.
func HasDigits(text string) bool {
	return reDigit.MatchString(text)
}

// PriceLike reports whether text has digits and is not placeholder text.
func PriceLike(text string) bool {
	return HasDigits(text) && !IsPlaceholder(text)
}

// ValidName reports whether text can serve as a product name: not a
// placeholder, not only punctuation, no ellipsis run, and at least three
// non-whitespace characters.
func ValidName(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if IsPlaceholder(t) {
		return false
	}
	if reOnlyPunct.MatchString(t) {
		return false
	}
	if reEllipsis.MatchString(t) {
		return false
	}
	n := 0
	for _, r := range t {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n >= 3
}

// CleanText collapses whitespace runs and trims the result.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
