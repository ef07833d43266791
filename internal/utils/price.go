// utils/price.go
package utils

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParsePrice парсит цены из прайсов поставщиков: "12,50", "12,50 €", "€ 9.00",
// "1.234,50", "1 234,50" (NBSP/NNBSP), "EUR 10". Returns false when nothing
// numeric is left.
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// убрать символы валют и любые пробелы (включая неразрывные)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) {
			return -1
		}
		return r
	}, s)
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "eur"):
		s = s[3:]
	case strings.HasSuffix(low, "eur"):
		s = s[:len(s)-3]
	}
	if s == "" {
		return 0, false
	}

	s = normalizeSeparators(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Последний из "." / "," считаем десятичным, остальные считаем разделителями тысяч.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
