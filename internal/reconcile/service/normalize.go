package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics ("Güímar" == "guimar"),
// collapses whitespace runs and trims the ends.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	out := strings.ToLower(s)
	out = stripMarks(out)
	return collapseSpaces(out)
}

// StripYear removes every standalone year token in 1900–2099.
func StripYear(s string) string {
	if s == "" {
		return ""
	}
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); {
		if !unicode.IsDigit(rs[i]) {
			b.WriteRune(rs[i])
			i++
			continue
		}
		j := i
		for j < len(rs) && unicode.IsDigit(rs[j]) {
			j++
		}
		if isYear(rs[i:j]) && !isWordRune(rs, i-1) && !isWordRune(rs, j) {
			b.WriteByte(' ')
		} else {
			b.WriteString(string(rs[i:j]))
		}
		i = j
	}
	return collapseSpaces(b.String())
}

// "Finca X 2021" → год; "Viña2021", "A2021", "20210" → нет
func isYear(d []rune) bool {
	if len(d) != 4 {
		return false
	}
	for _, r := range d {
		if r < '0' || r > '9' {
			return false
		}
	}
	return (d[0] == '1' && d[1] == '9') || (d[0] == '2' && d[1] == '0')
}

func isWordRune(rs []rune, i int) bool {
	if i < 0 || i >= len(rs) {
		return false
	}
	return unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i])
}

// comparable is the form both sides are reduced to before distance is taken.
func comparable(s string, stripYears bool) string {
	if stripYears {
		s = StripYear(s)
	}
	return Normalize(s)
}

// NFD → drop Mn → NFC. transform.Chain keeps state, so build one per call.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Схлопывание пробелов
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
