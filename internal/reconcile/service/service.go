package service

import (
	"sort"

	"cellar-service/internal/reconcile/model"
)

// thresholdEps absorbs float rounding of 1 - d/n, so a similarity that is
// mathematically equal to the threshold still clears it.
const thresholdEps = 1e-9

// MatchAll: основная сверка. Для каждой строки прайса ищет ближайшее имя в
// каталоге и делит результат на matched / unmatched.
//
// Matched is sorted by descending similarity (stable), unmatched keeps the
// input order. An empty catalog leaves every row unmatched.
func MatchAll(rows []model.ExternalPriceRow, catalog []model.CatalogWine, opt model.Options) model.Result {
	res := model.Result{
		Matched:   make([]model.MatchResult, 0, len(rows)),
		Unmatched: make([]model.MatchResult, 0),
		Opts:      opt,
	}
	if len(rows) == 0 {
		return res
	}

	idx := buildIndex(catalog, opt.StripYears)

	for _, r := range rows {
		mr := matchRow(r, idx, opt)
		if mr.Matched() {
			res.Matched = append(res.Matched, mr)
		} else {
			res.Unmatched = append(res.Unmatched, mr)
		}
	}

	sort.SliceStable(res.Matched, func(i, j int) bool {
		return res.Matched[i].Similarity > res.Matched[j].Similarity
	})
	return res
}

// MatchEach returns one result per row in input order, matched or not.
func MatchEach(rows []model.ExternalPriceRow, catalog []model.CatalogWine, opt model.Options) []model.MatchResult {
	out := make([]model.MatchResult, 0, len(rows))
	if len(rows) == 0 {
		return out
	}
	idx := buildIndex(catalog, opt.StripYears)
	for _, r := range rows {
		out = append(out, matchRow(r, idx, opt))
	}
	return out
}

func matchRow(r model.ExternalPriceRow, idx *catalogIndex, opt model.Options) model.MatchResult {
	src := comparable(r.Name, opt.StripYears)
	mr := model.MatchResult{
		SourceName:    r.Name,
		SourcePrice:   r.Price,
		SourceWinery:  r.Winery,
		SourceVintage: r.Vintage,
	}

	best := idx.best(src)
	mr.EditDistance = best.dist
	if best.pos < 0 {
		// сравнивать не с чем
		mr.Similarity = 0
		return mr
	}
	mr.Similarity = Similarity(best.dist, runeLen(src), idx.lens[best.pos])

	if clearsThreshold(mr.Similarity, opt.Threshold) {
		w := idx.wines[best.pos]
		id, name := w.ID, w.Name
		mr.MatchedCatalogID = &id
		mr.MatchedCatalogName = &name
		if w.CurrentCost != nil {
			c := *w.CurrentCost
			mr.CurrentCost = &c
		}
	}
	return mr
}

func clearsThreshold(sim, threshold float64) bool {
	return sim+thresholdEps >= threshold
}
