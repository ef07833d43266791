package service

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellar-service/internal/reconcile/model"
)

func ptr[T any](v T) *T { return &v }

func TestMatchAll_YearInsensitive(t *testing.T) {
	catalog := []model.CatalogWine{
		{ID: "w1", Name: "Tajinaste Blanco 2022", CurrentCost: ptr(7.5)},
		{ID: "w2", Name: "Viñátigo Negramoll"},
	}
	rows := []model.ExternalPriceRow{{Name: "Tajinaste Blanco", Price: 8.0}}

	res := MatchAll(rows, catalog, model.DefaultOptions())
	require.Len(t, res.Matched, 1)
	assert.Empty(t, res.Unmatched)

	m := res.Matched[0]
	require.NotNil(t, m.MatchedCatalogID)
	assert.Equal(t, "w1", *m.MatchedCatalogID)
	assert.Equal(t, "Tajinaste Blanco 2022", *m.MatchedCatalogName)
	assert.Equal(t, 0, m.EditDistance)
	assert.Equal(t, 1.0, m.Similarity)
	require.NotNil(t, m.CurrentCost)
	assert.Equal(t, 7.5, *m.CurrentCost)
	require.NotNil(t, m.CostDelta())
	assert.InDelta(t, 0.5, *m.CostDelta(), 1e-9)
}

func TestMatchAll_ThresholdBoundary(t *testing.T) {
	catalog := []model.CatalogWine{{ID: "c", Name: strings.Repeat("a", 20)}}
	rows := []model.ExternalPriceRow{
		{Name: strings.Repeat("a", 11) + strings.Repeat("b", 9), Price: 1},
		{Name: strings.Repeat("a", 10) + strings.Repeat("b", 10), Price: 2},
	}

	res := MatchAll(rows, catalog, model.DefaultOptions())
	require.Len(t, res.Matched, 1)
	require.Len(t, res.Unmatched, 1)

	assert.Equal(t, 9, res.Matched[0].EditDistance)
	assert.InDelta(t, 0.55, res.Matched[0].Similarity, 1e-9)
	assert.Equal(t, 10, res.Unmatched[0].EditDistance)
	assert.InDelta(t, 0.5, res.Unmatched[0].Similarity, 1e-9)
	assert.Nil(t, res.Unmatched[0].MatchedCatalogID)
	assert.Nil(t, res.Unmatched[0].CurrentCost)
}

func TestMatchAll_EmptyCatalog(t *testing.T) {
	rows := []model.ExternalPriceRow{
		{Name: "Bermejo Malvasía", Price: 12},
		{Name: "Frontón de Oro", Price: 9, Winery: ptr("Frontón")},
	}
	res := MatchAll(rows, nil, model.DefaultOptions())

	assert.Empty(t, res.Matched)
	require.Len(t, res.Unmatched, 2)
	for i, u := range res.Unmatched {
		assert.Equal(t, rows[i].Name, u.SourceName)
		assert.Equal(t, 0.0, u.Similarity)
		assert.Nil(t, u.MatchedCatalogID)
	}
	assert.Equal(t, "Frontón", *res.Unmatched[1].SourceWinery)
}

func TestMatchAll_EmptyRows(t *testing.T) {
	res := MatchAll(nil, []model.CatalogWine{{ID: "x", Name: "X"}}, model.DefaultOptions())
	assert.Empty(t, res.Matched)
	assert.Empty(t, res.Unmatched)
}

func TestMatchAll_TieKeepsFirstCatalogEntry(t *testing.T) {
	catalog := []model.CatalogWine{
		{ID: "a", Name: "Vino A"},
		{ID: "b", Name: "Vino B"},
	}
	res := MatchAll([]model.ExternalPriceRow{{Name: "Vino C", Price: 5}}, catalog, model.DefaultOptions())
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "a", *res.Matched[0].MatchedCatalogID)
	assert.Equal(t, 1, res.Matched[0].EditDistance)
}

func TestMatchAll_PartitionAndOrdering(t *testing.T) {
	catalog := []model.CatalogWine{
		{ID: "1", Name: "Los Bermejos Malvasía Seco"},
		{ID: "2", Name: "Tajinaste Tradicional"},
		{ID: "3", Name: "Viñátigo Listán Blanco"},
	}
	rows := []model.ExternalPriceRow{
		{Name: "Tajinaste Tradicinal", Price: 11},
		{Name: "Completely Unrelated Product", Price: 3},
		{Name: "LOS BERMEJOS MALVASIA SECO", Price: 14},
		{Name: "Vinatigo Listan Blanc", Price: 9},
	}

	res := MatchAll(rows, catalog, model.DefaultOptions())
	assert.Equal(t, len(rows), len(res.Matched)+len(res.Unmatched))
	require.Len(t, res.Matched, 3)
	require.Len(t, res.Unmatched, 1)
	assert.Equal(t, "Completely Unrelated Product", res.Unmatched[0].SourceName)

	assert.Equal(t, "1", *res.Matched[0].MatchedCatalogID)
	assert.Equal(t, 1.0, res.Matched[0].Similarity)
	for i := 1; i < len(res.Matched); i++ {
		assert.GreaterOrEqual(t, res.Matched[i-1].Similarity, res.Matched[i].Similarity)
	}
	for _, m := range res.Matched {
		assert.GreaterOrEqual(t, m.Similarity+1e-9, res.Opts.Threshold)
		assert.GreaterOrEqual(t, m.EditDistance, 0)
	}
	for _, u := range res.Unmatched {
		assert.Less(t, u.Similarity, res.Opts.Threshold)
	}
}

func TestMatchAll_EqualSimilarityKeepsInputOrder(t *testing.T) {
	catalog := []model.CatalogWine{{ID: "1", Name: "Uno"}, {ID: "2", Name: "Dos"}}
	rows := []model.ExternalPriceRow{{Name: "Dos", Price: 1}, {Name: "Uno", Price: 2}}

	res := MatchAll(rows, catalog, model.DefaultOptions())
	require.Len(t, res.Matched, 2)
	assert.Equal(t, "Dos", res.Matched[0].SourceName)
	assert.Equal(t, "Uno", res.Matched[1].SourceName)
}

func TestMatchAll_Deterministic(t *testing.T) {
	catalog := []model.CatalogWine{{ID: "1", Name: "Abona Tinto"}, {ID: "2", Name: "Abona Blanco"}}
	rows := []model.ExternalPriceRow{{Name: "Abona Tint", Price: 1}, {Name: "Abona Blan", Price: 1}}

	first := MatchAll(rows, catalog, model.DefaultOptions())
	second := MatchAll(rows, catalog, model.DefaultOptions())
	assert.Equal(t, first, second)
}

func TestMatchAll_StripYearsDisabled(t *testing.T) {
	catalog := []model.CatalogWine{{ID: "w1", Name: "Tajinaste Blanco 2022"}}
	rows := []model.ExternalPriceRow{{Name: "Tajinaste Blanco", Price: 8}}

	res := MatchAll(rows, catalog, model.Options{Threshold: model.Threshold, StripYears: false})
	require.Len(t, res.Matched, 1)
	assert.Equal(t, 5, res.Matched[0].EditDistance)
	assert.Less(t, res.Matched[0].Similarity, 1.0)
}

func TestMatchAll_DoesNotAliasCatalog(t *testing.T) {
	catalog := []model.CatalogWine{{ID: "w1", Name: "Gran Reserva", CurrentCost: ptr(20.0)}}
	res := MatchAll([]model.ExternalPriceRow{{Name: "Gran Reserva", Price: 22}}, catalog, model.DefaultOptions())
	require.Len(t, res.Matched, 1)

	catalog[0].ID = "changed"
	*catalog[0].CurrentCost = 1
	assert.Equal(t, "w1", *res.Matched[0].MatchedCatalogID)
	assert.Equal(t, 20.0, *res.Matched[0].CurrentCost)
}

// прямой перебор без отсечения по длине
func naiveBest(src string, names []string) (int, int) {
	pos, dist := -1, 0
	for i, n := range names {
		d := EditDistance(src, n)
		if pos < 0 || d < dist {
			pos, dist = i, d
		}
	}
	return pos, dist
}

func TestCatalogIndex_MatchesNaiveScan(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdeñ ")
	word := func() string {
		n := rnd.Intn(12)
		r := make([]rune, n)
		for i := range r {
			r[i] = alphabet[rnd.Intn(len(alphabet))]
		}
		return string(r)
	}

	for round := 0; round < 50; round++ {
		catalog := make([]model.CatalogWine, 1+rnd.Intn(30))
		for i := range catalog {
			catalog[i] = model.CatalogWine{ID: fmt.Sprint(i), Name: word()}
		}
		idx := buildIndex(catalog, true)

		for q := 0; q < 20; q++ {
			src := comparable(word(), true)
			got := idx.best(src)
			pos, dist := naiveBest(src, idx.norm)
			require.Equal(t, pos, got.pos, "round %d src %q", round, src)
			require.Equal(t, dist, got.dist, "round %d src %q", round, src)
		}
	}
}

func TestMatchEach_KeepsInputOrder(t *testing.T) {
	catalog := []model.CatalogWine{
		{ID: "w1", Name: "Tajinaste Blanco"},
		{ID: "w2", Name: "Monje Listán Negro"},
	}
	rows := []model.ExternalPriceRow{
		{Name: "Zzzz desconocido", Price: 4},
		{Name: "Monje Listan Negro", Price: 9},
		{Name: "Tajinaste Blanc", Price: 8},
	}

	got := MatchEach(rows, catalog, model.DefaultOptions())
	require.Len(t, got, 3)
	assert.False(t, got[0].Matched())
	assert.Equal(t, "w2", *got[1].MatchedCatalogID)
	assert.Equal(t, "w1", *got[2].MatchedCatalogID)

	res := MatchAll(rows, catalog, model.DefaultOptions())
	assert.Len(t, res.Matched, 2)
	assert.Empty(t, MatchEach(nil, catalog, model.DefaultOptions()))
}
