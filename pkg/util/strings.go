package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	nonAlnumPattern   = regexp.MustCompile(`[^A-Z0-9 ]+`)
	corporateSuffixes = map[string]struct{}{
		"LIMITED": {}, "LTD": {}, "PRIVATE": {}, "PVT": {}, "COMPANY": {},
		"CORP": {}, "CORPORATION": {}, "INC": {},
	}
)

const maxSymbolLen = 12

func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || s == "-" || strings.EqualFold(s, "na") {
		return ""
	}
	return strings.ReplaceAll(s, ",", "")
}

// SafeFloat parses exchange numbers such as "1,234.5"; blanks and "null" give (0, false).
func SafeFloat(s string) (float64, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// SafeInt parses integers with thousand separators; decimals are truncated.
func SafeInt(s string) (int64, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// ExtractNumber pulls the first number out of scraped text like "₹45 (12.5%)".
func ExtractNumber(s string) (float64, bool) {
	s = strings.NewReplacer("₹", "", "Rs.", "", "Rs", "", "%", "", ",", "").Replace(s)
	s = strings.Join(strings.Fields(s), "")
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParsePriceRange reads a band like "Rs.100 to Rs.110" or "₹100-110".
// A single price yields low == high.
func ParsePriceRange(s string) (low, high float64, ok bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.NewReplacer(" to ", " ", "-", " ").Replace(s)
	matches := numberPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	low, err := strconv.ParseFloat(matches[0], 64)
	if err != nil {
		return 0, 0, false
	}
	high = low
	if len(matches) > 1 {
		if v, err := strconv.ParseFloat(matches[len(matches)-1], 64); err == nil {
			high = v
		}
	}
	if high < low {
		low, high = high, low
	}
	return low, high, true
}

// ExtractSymbol derives a ticker-like key from a company name.
func ExtractSymbol(company string) string {
	s := strings.ToUpper(strings.TrimSpace(company))
	s = nonAlnumPattern.ReplaceAllString(s, " ")
	words := make([]string, 0, 2)
	for _, w := range strings.Fields(s) {
		if _, skip := corporateSuffixes[w]; skip {
			continue
		}
		words = append(words, w)
		if len(words) == 2 {
			break
		}
	}
	sym := strings.Join(words, "")
	if len(sym) > maxSymbolLen {
		sym = sym[:maxSymbolLen]
	}
	return sym
}
