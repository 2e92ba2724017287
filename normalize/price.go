// Package normalize turns price-bearing text into canonical decimal strings
// and classifies short text fragments (currency markers, placeholders, names).
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultMinMagnitude is the value below which a currency-less number is
// more likely a count or rating than a price.
const DefaultMinMagnitude = 20.0

// reNumber matches the first run of digits mixed with group separators.
// Only horizontal whitespace groups digits; a line break ends the number.
// An optional sign directly in front of the first digit is kept so that
// negative values can be rejected instead of silently flipped.
var reNumber = regexp.MustCompile(`[-+]?\d[\d.,\t \x{00A0}\x{202F}\x{2009}]*`)

// Price normalizes the first number found in raw into a canonical decimal
// string. It returns false when raw holds no number or the value is not
// strictly positive after rounding to two fractional digits.
func Price(raw string) (string, bool) {
	m := reNumber.FindString(raw)
	if m == "" {
		return "", false
	}
	num := joinGroups(m)
	num = strings.TrimRight(num, ".,")

	num = resolveSeparators(num)
	if num == "" {
		return "", false
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return "", false
	}
	return Format(v)
}

// Machine normalizes a machine-formatted number (structured data, attribute
// values) where "." is always the decimal separator. Anything that does not
// parse as a plain float falls back to Price.
func Machine(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Format(v)
	}
	return Price(raw)
}

// Format renders v with at most two fractional digits, trimming trailing
// zeros. Non-positive (after rounding), NaN and infinite values are rejected.
func Format(v float64) (string, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	v = math.Round(v*100) / 100
	if v <= 0 {
		return "", false
	}
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64), true
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s, true
}

// Value parses a canonical string produced by Price or Format.
func Value(canonical string) (float64, bool) {
	v, err := strconv.ParseFloat(canonical, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// resolveSeparators rewrites num (digits, sign, "," and ".") so that "." is
// the only, decimal, separator.
//
//   - both present: the rightmost one is decimal, the other grouping
//   - only one kind: grouping when the last group has exactly three digits,
//     decimal otherwise
func resolveSeparators(num string) string {
	lastComma := strings.LastIndexByte(num, ',')
	lastDot := strings.LastIndexByte(num, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			return strings.Replace(num, ",", ".", 1)
		}
		return strings.ReplaceAll(num, ",", "")
	case lastComma >= 0:
		return resolveSingle(num, ",")
	case lastDot >= 0:
		return resolveSingle(num, ".")
	default:
		return num
	}
}

func resolveSingle(num, sep string) string {
	groups := strings.Split(num, sep)
	last := groups[len(groups)-1]
	if len(last) == 3 || len(groups) > 2 {
		return strings.Join(groups, "")
	}
	return strings.Join(groups, ".")
}

// joinGroups glues whitespace-separated digit groups back together. A group
// after whitespace only belongs to the number when it starts with exactly
// three digits ("1 280,00"); otherwise the number ends before it.
func joinGroups(m string) string {
	if i := strings.IndexAny(m, "\r\n"); i >= 0 {
		m = m[:i]
	}
	parts := strings.FieldsFunc(m, unicode.IsSpace)
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if leadingDigits(p) != 3 {
			break
		}
		b.WriteString(p)
	}
	return b.String()
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}
