package service

import (
	"cellar-service/internal/reconcile/model"
)

// индекс каталога: имена нормализуются один раз на сессию, а не на каждую строку
type catalogIndex struct {
	wines []model.CatalogWine
	norm  []string
	lens  []int
}

type candidate struct {
	pos  int // позиция в каталоге, -1 если каталог пуст
	dist int
	norm string
}

func buildIndex(catalog []model.CatalogWine, stripYears bool) *catalogIndex {
	idx := &catalogIndex{
		wines: catalog,
		norm:  make([]string, len(catalog)),
		lens:  make([]int, len(catalog)),
	}
	for i, w := range catalog {
		n := comparable(w.Name, stripYears)
		idx.norm[i] = n
		idx.lens[i] = runeLen(n)
	}
	return idx
}

// best scans the whole catalog in order and keeps the first candidate with
// the minimum distance.
//
// |len(a)-len(b)| is a lower bound of the edit distance, so a candidate whose
// length differs by at least the current best cannot replace it (ties keep
// the earlier one). Skipping it does not change the result.
func (idx *catalogIndex) best(src string) candidate {
	srcLen := runeLen(src)
	out := candidate{pos: -1, dist: srcLen}
	for i, n := range idx.norm {
		if out.pos >= 0 && absInt(idx.lens[i]-srcLen) >= out.dist {
			continue
		}
		d := EditDistance(src, n)
		if out.pos < 0 || d < out.dist {
			out = candidate{pos: i, dist: d, norm: n}
			if d == 0 {
				break
			}
		}
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
