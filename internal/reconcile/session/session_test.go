package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellar-service/internal/catalog"
	"cellar-service/internal/fileio"
	"cellar-service/internal/reconcile/model"
)

func ptr[T any](v T) *T { return &v }

// fakeStore is an in-memory catalog for session tests.
type fakeStore struct {
	mu       sync.Mutex
	wines    []model.CatalogWine
	listErr  error
	failIDs  map[string]bool
	writes   []string
	costs    map[string]float64
	changes  []catalog.CostChange
	auditErr error
	created  []catalog.NewWine
	block    chan struct{}
}

func (f *fakeStore) ListCatalog(context.Context) ([]model.CatalogWine, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.wines, nil
}

func (f *fakeStore) UpdateCost(_ context.Context, id string, cost float64) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, id)
	if f.failIDs[id] {
		return errors.New("write refused")
	}
	if f.costs == nil {
		f.costs = map[string]float64{}
	}
	f.costs[id] = cost
	return nil
}

func (f *fakeStore) RecordCostChange(_ context.Context, c catalog.CostChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.changes = append(f.changes, c)
	return nil
}

func (f *fakeStore) CreateWine(_ context.Context, w catalog.NewWine) (string, error) {
	w, err := w.Prepare()
	if err != nil {
		return "", err
	}
	f.created = append(f.created, w)
	return "new-1", nil
}

// recordingCreator accepts anything, so the session alone must validate.
type recordingCreator struct {
	calls []catalog.NewWine
}

func (r *recordingCreator) CreateWine(_ context.Context, w catalog.NewWine) (string, error) {
	r.calls = append(r.calls, w)
	return "rec-1", nil
}

func newSession(store *fakeStore) *Session {
	return New(Deps{
		Catalog: store,
		Writer:  store,
		Creator: store,
		Audit:   store,
		Logger:  zerolog.Nop(),
	})
}

func threeWineCatalog() []model.CatalogWine {
	return []model.CatalogWine{
		{ID: "w1", Name: "Viña Norte Tinto", CurrentCost: ptr(8.0)},
		{ID: "w2", Name: "Tajinaste Blanco", CurrentCost: ptr(11.0)},
		{ID: "w3", Name: "Monje Listán Negro", CurrentCost: nil},
	}
}

var priceList = [][]string{
	{"Lista de precios 2024"},
	{"Vino", "Bodega", "Precio", "Añada"},
	{"Viña Norte Tinto 2022", "Bodegas Insulares", "8,50", "2022"},
	{"Tajinaste Blanco", "Tajinaste", "11,20", ""},
	{"Monje Listan Negro", "Monje", "9", "s.a."},
	{"Zzzz desconocido", "", "4", ""},
}

func TestLoad_MatchesAndSelectsAll(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog()}
	s := newSession(store)

	out, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Rows: 4, Matched: 3, Unmatched: 1}, out)
	assert.Equal(t, Matched, s.State())

	snap := s.Snapshot()
	require.NotNil(t, snap.Result)
	assert.Equal(t, []bool{true, true, true}, snap.Selected)
	assert.Equal(t, "Zzzz desconocido", snap.Result.Unmatched[0].SourceName)
}

func TestLoad_NoData(t *testing.T) {
	s := newSession(&fakeStore{wines: threeWineCatalog()})
	out, err := s.Load(context.Background(), [][]string{{"Vino", "Precio"}, {"", "abc"}})
	require.NoError(t, err)
	assert.True(t, out.NoData)
	assert.Equal(t, Idle, s.State())
}

func TestLoad_CatalogUnavailable(t *testing.T) {
	cause := errors.New("db down")
	s := newSession(&fakeStore{listErr: cause})
	_, err := s.Load(context.Background(), priceList)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Idle, s.State())
	assert.Nil(t, s.Snapshot().Result)
}

func TestLoadFile_CSV(t *testing.T) {
	s := newSession(&fakeStore{wines: threeWineCatalog()})
	csv := "Vino;Precio\nTajinaste Blanco 2021;11,20\n"
	out, err := s.LoadFile(context.Background(), bytes.NewReader([]byte(csv)), "precios.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Matched)
	assert.Equal(t, "precios.csv", s.Snapshot().Filename)
}

func TestLoadFile_Unsupported(t *testing.T) {
	s := newSession(&fakeStore{})
	_, err := s.LoadFile(context.Background(), bytes.NewReader([]byte("x")), "precios.pdf")
	assert.ErrorIs(t, err, ErrUnreadableFile)
	assert.ErrorIs(t, err, fileio.ErrUnsupported)
	assert.Equal(t, Idle, s.State())
}

func TestSelection_RequiresMatchedState(t *testing.T) {
	s := newSession(&fakeStore{})
	assert.ErrorIs(t, s.Toggle(0), ErrInvalidState)
	assert.ErrorIs(t, s.SelectAll(true), ErrInvalidState)

	_, err := s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSelection_ToggleAndBounds(t *testing.T) {
	s := newSession(&fakeStore{wines: threeWineCatalog()})
	_, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)

	require.NoError(t, s.Toggle(1))
	assert.Equal(t, []bool{true, false, true}, s.Snapshot().Selected)
	require.NoError(t, s.SetSelected(1, true))
	require.NoError(t, s.SelectAll(false))
	assert.Equal(t, []bool{false, false, false}, s.Snapshot().Selected)

	assert.ErrorIs(t, s.Toggle(3), ErrRowOutOfRange)
	assert.ErrorIs(t, s.SetSelected(-1, true), ErrRowOutOfRange)

	_, err = s.Commit(context.Background())
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Equal(t, Matched, s.State())
}

func TestCommit_WritesSelectedAndAudits(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog()}
	s := newSession(store)
	_, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)

	matched := s.Snapshot().Result.Matched
	var skipped string
	for i, m := range matched {
		if *m.MatchedCatalogID == "w3" {
			require.NoError(t, s.Toggle(i))
			skipped = "w3"
		}
	}
	require.Equal(t, "w3", skipped)

	rep, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Selected)
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Empty(t, rep.Failures)
	assert.False(t, rep.Interrupted)
	assert.Equal(t, Idle, s.State())

	assert.InDelta(t, 8.5, store.costs["w1"], 1e-9)
	assert.InDelta(t, 11.2, store.costs["w2"], 1e-9)
	assert.NotContains(t, store.costs, "w3")

	require.Len(t, store.changes, 2)
	for _, c := range store.changes {
		assert.Equal(t, catalog.CostReasonReconcile, c.Reason)
		assert.Equal(t, catalog.FieldCost, c.Field)
		require.NotNil(t, c.Old)
	}
}

func TestCommit_PartialFailureContinues(t *testing.T) {
	store := &fakeStore{
		wines: []model.CatalogWine{
			{ID: "a", Name: "Alpha Tinto"},
			{ID: "b", Name: "Bravo Blanco"},
			{ID: "c", Name: "Charlie Rosado"},
		},
		failIDs: map[string]bool{"b": true},
	}
	s := New(Deps{Catalog: store, Writer: store, Workers: 1, Logger: zerolog.Nop()})
	_, err := s.Load(context.Background(), [][]string{
		{"Vino", "Precio"},
		{"Alpha Tinto", "5"},
		{"Bravo Blanco", "6"},
		{"Charlie Rosado", "7"},
	})
	require.NoError(t, err)

	rep, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Selected)
	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 2, rep.Succeeded)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "b", rep.Failures[0].CatalogID)
	assert.Equal(t, "Bravo Blanco", rep.Failures[0].Name)

	// третья запись ушла несмотря на ошибку второй
	assert.Equal(t, []string{"a", "b", "c"}, store.writes)
}

func TestCommit_AuditFailureStillCounts(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog(), auditErr: errors.New("history full")}
	s := newSession(store)
	_, err := s.Load(context.Background(), [][]string{{"Vino", "Precio"}, {"Tajinaste Blanco", "12"}})
	require.NoError(t, err)

	rep, err := s.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Empty(t, rep.Failures)
}

func TestCommit_CancelledBeforeStart(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog()}
	s := newSession(store)
	_, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := s.Commit(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Interrupted)
	assert.Equal(t, 3, rep.Selected)
	assert.Equal(t, 0, rep.Attempted)
	assert.Empty(t, store.writes)
	assert.Equal(t, Idle, s.State())
}

func TestCommit_InFlightWritesSurviveCancel(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog(), block: make(chan struct{})}
	s := New(Deps{Catalog: store, Writer: store, Workers: 1, Logger: zerolog.Nop()})
	_, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan CommitReport)
	go func() {
		rep, _ := s.Commit(ctx)
		done <- rep
	}()

	// первая запись висит в UpdateCost, вторая ждёт свободного воркера
	require.Eventually(t, func() bool { return s.State() == Committing }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Toggle(0), ErrInvalidState)
	cancel()
	close(store.block)

	rep := <-done
	assert.GreaterOrEqual(t, rep.Attempted, 1)
	assert.Equal(t, rep.Attempted, rep.Succeeded)
	assert.Len(t, store.writes, rep.Attempted)
}

func TestAddAsNew(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog()}
	s := newSession(store)
	_, err := s.Load(context.Background(), [][]string{
		{"Vino", "Bodega", "Precio", "Añada"},
		{"Bermejo Malvasía Seco", "Bermejo", "10,50", "2023"},
		{"Zzzz desconocido", "", "4", "s.a."},
	})
	require.NoError(t, err)
	require.Len(t, s.Snapshot().Result.Unmatched, 2)

	_, err = s.AddAsNew(context.Background(), 0, NewWineForm{Type: "cerveza"})
	assert.ErrorIs(t, err, catalog.ErrInvalid)
	assert.Len(t, s.Snapshot().Result.Unmatched, 2)

	id, err := s.AddAsNew(context.Background(), 0, NewWineForm{Type: "blanco", Island: "lanzarote"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", id)

	require.Len(t, store.created, 1)
	w := store.created[0]
	assert.Equal(t, "Bermejo Malvasía Seco", w.Name)
	assert.Equal(t, "Lanzarote", w.Island)
	assert.Equal(t, "Bermejo", *w.Winery)
	assert.Equal(t, 2023, *w.Vintage)
	assert.InDelta(t, 10.5, *w.Cost, 1e-9)

	left := s.Snapshot().Result.Unmatched
	require.Len(t, left, 1)
	assert.Equal(t, "Zzzz desconocido", left[0].SourceName)

	_, err = s.AddAsNew(context.Background(), 5, NewWineForm{Type: "tinto"})
	assert.ErrorIs(t, err, ErrRowOutOfRange)
}

func TestAddAsNew_TypeCheckedBeforeCreate(t *testing.T) {
	store := &fakeStore{wines: threeWineCatalog()}
	creator := &recordingCreator{}
	s := New(Deps{Catalog: store, Writer: store, Creator: creator, Logger: zerolog.Nop()})
	_, err := s.Load(context.Background(), [][]string{
		{"Vino", "Precio"},
		{"Zzzz desconocido", "4"},
	})
	require.NoError(t, err)

	for _, form := range []NewWineForm{{}, {Type: "  "}, {Type: "cerveza"}} {
		_, err := s.AddAsNew(context.Background(), 0, form)
		assert.ErrorIs(t, err, catalog.ErrInvalid, "type %q", form.Type)
	}
	assert.Empty(t, creator.calls)
	assert.Len(t, s.Snapshot().Result.Unmatched, 1)

	_, err = s.AddAsNew(context.Background(), 0, NewWineForm{Type: " Tinto "})
	require.NoError(t, err)
	require.Len(t, creator.calls, 1)
	assert.Equal(t, "tinto", creator.calls[0].Type)
	assert.Empty(t, s.Snapshot().Result.Unmatched)
}

func TestParseVintage(t *testing.T) {
	assert.Equal(t, 2019, *parseVintage(ptr(" 2019 ")))
	assert.Nil(t, parseVintage(ptr("s.a.")))
	assert.Nil(t, parseVintage(ptr("12")))
	assert.Nil(t, parseVintage(nil))
}

func TestSnapshot_DoesNotShareSlices(t *testing.T) {
	s := newSession(&fakeStore{wines: threeWineCatalog()})
	_, err := s.Load(context.Background(), priceList)
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Selected[0] = false
	snap.Result.Matched[0].SourceName = "changed"

	again := s.Snapshot()
	assert.True(t, again.Selected[0])
	assert.NotEqual(t, "changed", again.Result.Matched[0].SourceName)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{Logger: zerolog.Nop()}, 0)
	s := r.Create()
	got, err := r.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Delete(s.ID()))
	assert.False(t, r.Delete(s.ID()))
	_, err = r.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_EvictsStale(t *testing.T) {
	r := NewRegistry(Deps{Logger: zerolog.Nop()}, time.Minute)
	old := r.Create()
	old.mu.Lock()
	old.updatedAt = time.Now().Add(-2 * time.Minute)
	old.mu.Unlock()

	r.Create()
	_, err := r.Get(old.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, r.Len())
}
