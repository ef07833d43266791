package service

// EditDistance is the Levenshtein distance between a and b over runes:
// insert, delete and substitute all cost 1.
func EditDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// две строки вместо полной матрицы
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Similarity converts a distance into [0,1]: 1 - d/max(lenA, lenB, 1).
// Two empty strings are identical (1.0).
func Similarity(distance, lenA, lenB int) float64 {
	m := max(lenA, lenB, 1)
	s := 1 - float64(distance)/float64(m)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// NameSimilarity normalizes both names (stripping years when asked) and
// returns their distance and similarity.
func NameSimilarity(a, b string, stripYears bool) (int, float64) {
	na := comparable(a, stripYears)
	nb := comparable(b, stripYears)
	d := EditDistance(na, nb)
	return d, Similarity(d, runeLen(na), runeLen(nb))
}

func runeLen(s string) int { return len([]rune(s)) }
