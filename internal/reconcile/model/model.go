package model

// Threshold is the minimum similarity for an external row to be treated as
// the same wine as its best catalog candidate.
const Threshold = 0.55

// Options controls how names are compared.
type Options struct {
	Threshold  float64 `json:"threshold"`  // порог схожести (0..1)
	StripYears bool    `json:"stripYears"` // убрать 1900–2099 из имён перед сравнением
}

// DefaultOptions returns Threshold with year stripping on.
func DefaultOptions() Options {
	return Options{Threshold: Threshold, StripYears: true}
}

// ValidThreshold reports whether t lies in (0, 1].
func ValidThreshold(t float64) bool { return t > 0 && t <= 1 }

// ExternalPriceRow is one row of a supplier price list.
type ExternalPriceRow struct {
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	Winery  *string `json:"winery,omitempty"`  // nil: колонка не найдена или ячейка пустая
	Vintage *string `json:"vintage,omitempty"` // сырой текст, не проверяется
}

// CatalogWine is the part of a catalog wine that matching needs.
type CatalogWine struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CurrentCost *float64 `json:"currentCost"`
}

// MatchResult is the outcome of comparing one external row with the catalog.
type MatchResult struct {
	SourceName    string  `json:"sourceName"`
	SourcePrice   float64 `json:"sourcePrice"`
	SourceWinery  *string `json:"sourceWinery,omitempty"`
	SourceVintage *string `json:"sourceVintage,omitempty"`

	MatchedCatalogID   *string  `json:"matchedCatalogId"`
	MatchedCatalogName *string  `json:"matchedCatalogName"`
	CurrentCost        *float64 `json:"currentCost"`

	EditDistance int     `json:"editDistance"`
	Similarity   float64 `json:"similarity"`
}

// Matched reports whether the row cleared the threshold.
func (m MatchResult) Matched() bool { return m.MatchedCatalogID != nil }

// CostDelta returns source price minus current cost, or nil when the current
// cost is unknown.
func (m MatchResult) CostDelta() *float64 {
	if m.CurrentCost == nil {
		return nil
	}
	d := m.SourcePrice - *m.CurrentCost
	return &d
}

// Result partitions one run into matched and unmatched rows.
type Result struct {
	Matched   []MatchResult `json:"matched"`
	Unmatched []MatchResult `json:"unmatched"`
	Opts      Options       `json:"opts"`
}
