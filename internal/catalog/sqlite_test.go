package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cellar.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_CreateAndGetWine(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.CreateWine(ctx, NewWine{
		Name:    "Tajinaste Tradicional",
		Type:    "tinto",
		Island:  "Valle de La Orotava",
		Vintage: ptr(2022),
		Winery:  ptr("Bodegas Tajinaste"),
		Cost:    ptr(9.5),
		Stock:   6,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w, err := st.GetWine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tajinaste Tradicional", w.Name)
	assert.Equal(t, "Tenerife", w.Island)
	require.NotNil(t, w.Vintage)
	assert.Equal(t, 2022, *w.Vintage)
	require.NotNil(t, w.Cost)
	assert.Equal(t, 9.5, *w.Cost)
	assert.Nil(t, w.ListPrice)
	assert.Nil(t, w.Grapes)
	assert.Equal(t, 6, w.Stock)
	assert.False(t, w.CreatedAt.IsZero())
}

func TestSQLite_CreateWine_Invalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.CreateWine(context.Background(), NewWine{Name: "X", Type: "naranja"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSQLite_GetWine_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetWine(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListCatalogAndUpdateCost(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	idB, err := st.CreateWine(ctx, NewWine{Name: "Bermejo Malvasía Seco", Type: "blanco", Cost: ptr(10.0)})
	require.NoError(t, err)
	idA, err := st.CreateWine(ctx, NewWine{Name: "Abona Tinto", Type: "tinto"})
	require.NoError(t, err)

	cat, err := st.ListCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, cat, 2)
	assert.Equal(t, idA, cat[0].ID, "ordered by name")
	assert.Nil(t, cat[0].CurrentCost)
	assert.Equal(t, idB, cat[1].ID)
	require.NotNil(t, cat[1].CurrentCost)
	assert.Equal(t, 10.0, *cat[1].CurrentCost)

	require.NoError(t, st.UpdateCost(ctx, idA, 7.25))
	w, err := st.GetWine(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, 7.25, *w.Cost)

	assert.ErrorIs(t, st.UpdateCost(ctx, "missing", 1), ErrNotFound)
	assert.ErrorIs(t, st.UpdateCost(ctx, idA, -1), ErrInvalid)
}

func TestSQLite_ListCatalog_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	cat, err := st.ListCatalog(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, cat)
	assert.Empty(t, cat)
}

func TestSQLite_CostHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	id, err := st.CreateWine(ctx, NewWine{Name: "Frontón de Oro", Type: "tinto"})
	require.NoError(t, err)

	require.NoError(t, st.RecordCostChange(ctx, CostChange{WineID: id, New: 8, Reason: CostReasonManual}))
	require.NoError(t, st.RecordCostChange(ctx, CostChange{WineID: id, Old: ptr(8.0), New: 9, Reason: CostReasonReconcile}))

	h, err := st.CostHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 9.0, h[0].New, "newest first")
	assert.Equal(t, 8.0, *h[0].Old)
	assert.Equal(t, FieldCost, h[0].Field)
	assert.Nil(t, h[1].Old)
}

func TestSQLite_AdjustStock(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	id, err := st.CreateWine(ctx, NewWine{Name: "Viñátigo Negramoll", Type: "tinto", Stock: 3})
	require.NoError(t, err)

	m, err := st.AdjustStock(ctx, id, -2, ReasonSale, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.StockAfter)

	_, err = st.AdjustStock(ctx, id, -2, ReasonBreakage, ptr("caja rota"))
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = st.AdjustStock(ctx, id, 12, ReasonManual, ptr("entrada proveedor"))
	require.NoError(t, err)

	w, err := st.GetWine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 13, w.Stock)

	moves, err := st.StockHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, moves, 2, "rejected adjustment is not recorded")
	assert.Equal(t, 12, moves[0].Delta)
	assert.Equal(t, "entrada proveedor", *moves[0].Notes)

	_, err = st.AdjustStock(ctx, "missing", 1, ReasonManual, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.AdjustStock(ctx, id, 1, "regalo", nil)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = st.AdjustStock(ctx, id, 0, ReasonManual, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSQLite_ListWinesFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for _, w := range []NewWine{
		{Name: "A", Type: "tinto", Island: "Lanzarote"},
		{Name: "B", Type: "blanco", Island: "Lanzarote"},
		{Name: "C", Type: "tinto", Island: "Abona"},
	} {
		_, err := st.CreateWine(ctx, w)
		require.NoError(t, err)
	}

	all, err := st.ListWines(ctx, WineFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tintos, err := st.ListWines(ctx, WineFilter{Type: "tinto"})
	require.NoError(t, err)
	assert.Len(t, tintos, 2)

	tf, err := st.ListWines(ctx, WineFilter{Type: "tinto", Island: "tenerife"})
	require.NoError(t, err)
	require.Len(t, tf, 1)
	assert.Equal(t, "C", tf[0].Name)
}

func TestSQLite_Bodegas(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBodega(ctx, NewBodega{Name: "Los Bermejos", Island: ptr("lanzarote")})
	require.NoError(t, err)
	assert.Equal(t, "Lanzarote", *b.Island)

	_, err = st.CreateWine(ctx, NewWine{Name: "Bermejo Rosado", Type: "rosado", BodegaID: &b.ID})
	require.NoError(t, err)

	got, err := st.GetBodega(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.WineCount)

	list, err := st.ListBodegas(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = st.GetBodega(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.CreateBodega(ctx, NewBodega{Name: ""})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSQLite_Documents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	wineID, err := st.CreateWine(ctx, NewWine{Name: "X", Type: "dulce"})
	require.NoError(t, err)

	d, err := st.CreateDocument(ctx, NewDocument{
		Type: "factura", Filename: "f.pdf", ContentType: "application/pdf", Size: 10,
		ObjectKey: "documents/f.pdf", URL: "/files/documents/f.pdf", WineID: &wineID,
	})
	require.NoError(t, err)
	assert.False(t, d.Processed)

	_, err = st.CreateDocument(ctx, NewDocument{Type: "otro", Filename: "n.txt", ContentType: "text/plain", ObjectKey: "documents/n.txt", URL: "u"})
	require.NoError(t, err)

	byWine, err := st.ListDocuments(ctx, DocumentFilter{WineID: wineID})
	require.NoError(t, err)
	require.Len(t, byWine, 1)
	assert.Equal(t, d.ID, byWine[0].ID)

	all, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, st.MarkDocumentProcessed(ctx, d.ID, `{"vinos":[]}`))
	got, err := st.GetDocument(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.JSONEq(t, `{"vinos":[]}`, *got.Extracted)

	assert.ErrorIs(t, st.MarkDocumentProcessed(ctx, "missing", "{}"), ErrNotFound)
}

func TestSQLite_SetShortDescription(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	id, err := st.CreateWine(ctx, NewWine{Name: "X", Type: "espumoso"})
	require.NoError(t, err)

	require.NoError(t, st.SetShortDescription(ctx, id, "Burbuja fina y fresca."))
	w, err := st.GetWine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Burbuja fina y fresca.", *w.ShortDescription)
	assert.ErrorIs(t, st.SetShortDescription(ctx, "missing", "x"), ErrNotFound)
}

func TestSQLite_UpdateBodega(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBodega(ctx, NewBodega{Name: "Bodega Vulcano", Website: ptr("old.es")})
	require.NoError(t, err)

	got, err := st.UpdateBodega(ctx, b.ID, BodegaPatch{Island: ptr("lanzarote"), Website: ptr(""), Notes: ptr(" pedir martes ")})
	require.NoError(t, err)
	assert.Equal(t, "Bodega Vulcano", got.Name)
	assert.Equal(t, "Lanzarote", *got.Island)
	assert.Nil(t, got.Website)
	assert.Equal(t, "pedir martes", *got.Notes)

	again, err := st.GetBodega(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Island, again.Island)
	assert.Nil(t, again.Website)

	_, err = st.UpdateBodega(ctx, b.ID, BodegaPatch{Name: ptr("  ")})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = st.UpdateBodega(ctx, "missing", BodegaPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListPriceAndPhoto(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	id, err := st.CreateWine(ctx, NewWine{Name: "Malvasía Volcánica", Type: "blanco"})
	require.NoError(t, err)

	require.NoError(t, st.UpdateListPrice(ctx, id, 28))
	require.NoError(t, st.SetPhotoURL(ctx, id, "/files/photos/x.jpg"))
	w, err := st.GetWine(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 28.0, *w.ListPrice)
	assert.Equal(t, "/files/photos/x.jpg", *w.PhotoURL)

	assert.ErrorIs(t, st.UpdateListPrice(ctx, id, -1), ErrInvalid)
	assert.ErrorIs(t, st.UpdateListPrice(ctx, "missing", 1), ErrNotFound)
	assert.ErrorIs(t, st.SetPhotoURL(ctx, "missing", "u"), ErrNotFound)
}

func TestSQLite_Pairings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	id, err := st.CreateWine(ctx, NewWine{Name: "Listán Negro", Type: "tinto"})
	require.NoError(t, err)

	p1, err := st.CreatePairing(ctx, NewPairing{WineID: id, Dish: " Cabrito ", Description: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Cabrito", p1.Dish)
	assert.Nil(t, p1.Description)
	assert.True(t, p1.OnList)
	assert.Equal(t, 0, p1.Position)

	p2, err := st.CreatePairing(ctx, NewPairing{WineID: id, Dish: "Queso asado", OnList: ptr(false), AIGenerated: true})
	require.NoError(t, err)
	assert.Equal(t, 1, p2.Position)

	list, err := st.ListPairings(ctx, id)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Cabrito", list[0].Dish)
	assert.False(t, list[1].OnList)
	assert.True(t, list[1].AIGenerated)

	_, err = st.CreatePairing(ctx, NewPairing{WineID: "missing", Dish: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.CreatePairing(ctx, NewPairing{WineID: id, Dish: " "})
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, st.DeletePairing(ctx, id, p1.ID))
	assert.ErrorIs(t, st.DeletePairing(ctx, id, p1.ID), ErrNotFound)
	assert.ErrorIs(t, st.DeletePairing(ctx, "other", p2.ID), ErrNotFound)
	list, err = st.ListPairings(ctx, id)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
