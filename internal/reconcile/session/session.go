// Package session drives one price-list reconciliation: load a supplier file,
// match it against the catalog, let the user pick rows, then write the new
// costs back.
package session

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cellar-service/internal/catalog"
	"cellar-service/internal/fileio"
	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/reconcile/service"
)

type State string

const (
	Idle       State = "idle"
	Parsing    State = "parsing"
	Matched    State = "matched"
	Committing State = "committing"
)

// DefaultWorkers bounds concurrent cost writes during Commit.
const DefaultWorkers = 4

var (
	ErrCatalogUnavailable = eris.New("session: catalog unavailable")
	ErrUnreadableFile     = eris.New("session: unreadable file")
	ErrInvalidState       = eris.New("session: invalid state")
	ErrNothingSelected    = eris.New("session: nothing selected")
	ErrRowOutOfRange      = eris.New("session: row index out of range")
)

// Catalog reads the current wine catalog.
type Catalog interface {
	ListCatalog(ctx context.Context) ([]model.CatalogWine, error)
}

// CostWriter updates one wine's cost.
type CostWriter interface {
	UpdateCost(ctx context.Context, wineID string, cost float64) error
}

// WineCreator adds a wine to the catalog and returns its id.
type WineCreator interface {
	CreateWine(ctx context.Context, w catalog.NewWine) (string, error)
}

// AuditLog records cost history entries.
type AuditLog interface {
	RecordCostChange(ctx context.Context, c catalog.CostChange) error
}

// Deps are the collaborators of a session. Audit is optional.
type Deps struct {
	Catalog Catalog
	Writer  CostWriter
	Creator WineCreator
	Audit   AuditLog
	Options model.Options
	Workers int
	Logger  zerolog.Logger
}

// Outcome summarizes a Load.
type Outcome struct {
	NoData    bool `json:"noData"`
	Rows      int  `json:"rows"`
	Matched   int  `json:"matched"`
	Unmatched int  `json:"unmatched"`
}

// Failure is one cost write that did not go through.
type Failure struct {
	Index     int    `json:"index"`
	CatalogID string `json:"catalogId"`
	Name      string `json:"name"`
	Error     string `json:"error"`
}

// CommitReport tallies a Commit. Attempted counts writes actually issued;
// Interrupted is set when cancellation stopped the loop early.
type CommitReport struct {
	Selected    int       `json:"selected"`
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Failures    []Failure `json:"failures"`
	Interrupted bool      `json:"interrupted"`
}

// NewWineForm carries what the user picks when adding an unmatched row.
type NewWineForm struct {
	Type   string `json:"type"`
	Island string `json:"island"`
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	Filename  string        `json:"filename,omitempty"`
	Result    *model.Result `json:"result,omitempty"`
	Selected  []bool        `json:"selected,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Session is safe for concurrent use; operations that do not fit the current
// state fail with ErrInvalidState.
type Session struct {
	mu       sync.Mutex
	id       string
	deps     Deps
	state    State
	filename string
	result   model.Result
	selected []bool // параллельно result.Matched

	createdAt time.Time
	updatedAt time.Time
}

func New(deps Deps) *Session {
	if deps.Options.Threshold <= 0 {
		deps.Options = model.DefaultOptions()
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	now := time.Now()
	return &Session{
		id:        uuid.New().String(),
		deps:      deps,
		state:     Idle,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadFile reads a supplier file (xlsx, xls, csv) and runs Load on its rows.
func (s *Session) LoadFile(ctx context.Context, r io.Reader, filename string) (Outcome, error) {
	raw, err := fileio.ReadRows(r, filename)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrUnreadableFile, err)
	}
	out, err := s.Load(ctx, raw)
	if err == nil && !out.NoData {
		s.mu.Lock()
		s.filename = filename
		s.mu.Unlock()
	}
	return out, err
}

// Load parses raw rows, fetches the catalog and matches. Any previous result
// is discarded.
func (s *Session) Load(ctx context.Context, raw [][]string) (Outcome, error) {
	s.mu.Lock()
	if s.state == Parsing || s.state == Committing {
		st := s.state
		s.mu.Unlock()
		return Outcome{}, eris.Wrapf(ErrInvalidState, "load while %s", st)
	}
	s.state = Parsing
	s.mu.Unlock()

	rows := service.ParseRows(raw)
	if len(rows) == 0 {
		s.reset()
		return Outcome{NoData: true}, nil
	}

	wines, err := s.deps.Catalog.ListCatalog(ctx)
	if err != nil {
		s.reset()
		return Outcome{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	res := service.MatchAll(rows, wines, s.deps.Options)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.selected = make([]bool, len(res.Matched))
	for i := range s.selected {
		s.selected[i] = true
	}
	s.state = Matched
	s.updatedAt = time.Now()

	s.deps.Logger.Info().
		Str("session", s.id).
		Int("rows", len(rows)).
		Int("catalog", len(wines)).
		Int("matched", len(res.Matched)).
		Int("unmatched", len(res.Unmatched)).
		Msg("price list matched")

	return Outcome{Rows: len(rows), Matched: len(res.Matched), Unmatched: len(res.Unmatched)}, nil
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.filename = ""
	s.result = model.Result{}
	s.selected = nil
	s.updatedAt = time.Now()
}

// Toggle flips the selection of matched row i.
func (s *Session) Toggle(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatchedRow(i); err != nil {
		return err
	}
	s.selected[i] = !s.selected[i]
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) SetSelected(i int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMatchedRow(i); err != nil {
		return err
	}
	s.selected[i] = on
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) SelectAll(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Matched {
		return eris.Wrapf(ErrInvalidState, "select while %s", s.state)
	}
	for i := range s.selected {
		s.selected[i] = on
	}
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) checkMatchedRow(i int) error {
	if s.state != Matched {
		return eris.Wrapf(ErrInvalidState, "select while %s", s.state)
	}
	if i < 0 || i >= len(s.selected) {
		return eris.Wrapf(ErrRowOutOfRange, "matched row %d", i)
	}
	return nil
}

type job struct {
	index int
	row   model.MatchResult
}

// Commit writes the source price as the new cost of every selected matched
// row. A failed row never stops the others. Cancelling ctx stops issuing new
// writes; writes already issued run to completion.
func (s *Session) Commit(ctx context.Context) (CommitReport, error) {
	s.mu.Lock()
	if s.state != Matched {
		st := s.state
		s.mu.Unlock()
		return CommitReport{}, eris.Wrapf(ErrInvalidState, "commit while %s", st)
	}
	jobs := make([]job, 0, len(s.selected))
	for i, on := range s.selected {
		if on {
			jobs = append(jobs, job{index: i, row: s.result.Matched[i]})
		}
	}
	if len(jobs) == 0 {
		s.mu.Unlock()
		return CommitReport{}, ErrNothingSelected
	}
	s.state = Committing
	s.updatedAt = time.Now()
	s.mu.Unlock()

	log := s.deps.Logger.With().Str("session", s.id).Logger()
	rep := CommitReport{Selected: len(jobs)}

	var (
		attempted, succeeded atomic.Int64
		failMu               sync.Mutex
		failures             []Failure
	)
	// уже отправленные записи не обрываем
	writeCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.deps.Workers)
	for _, j := range jobs {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		attempted.Add(1)
		g.Go(func() error {
			id := *j.row.MatchedCatalogID
			if err := s.deps.Writer.UpdateCost(writeCtx, id, j.row.SourcePrice); err != nil {
				log.Warn().Err(err).Str("wine", id).Msg("cost update failed")
				failMu.Lock()
				failures = append(failures, Failure{
					Index:     j.index,
					CatalogID: id,
					Name:      j.row.SourceName,
					Error:     err.Error(),
				})
				failMu.Unlock()
				return nil
			}
			succeeded.Add(1)
			s.audit(writeCtx, log, id, j.row)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(failures, func(a, b Failure) int { return a.Index - b.Index })
	rep.Attempted = int(attempted.Load())
	rep.Succeeded = int(succeeded.Load())
	rep.Failures = failures

	s.reset()

	log.Info().
		Int("selected", rep.Selected).
		Int("attempted", rep.Attempted).
		Int("succeeded", rep.Succeeded).
		Int("failed", len(rep.Failures)).
		Bool("interrupted", rep.Interrupted).
		Msg("costs committed")

	return rep, nil
}

// история цен: ошибка только в лог, строка всё равно считается записанной
func (s *Session) audit(ctx context.Context, log zerolog.Logger, id string, row model.MatchResult) {
	if s.deps.Audit == nil {
		return
	}
	err := s.deps.Audit.RecordCostChange(ctx, catalog.CostChange{
		WineID: id,
		Field:  catalog.FieldCost,
		Old:    row.CurrentCost,
		New:    row.SourcePrice,
		Reason: catalog.CostReasonReconcile,
	})
	if err != nil {
		log.Warn().Err(err).Str("wine", id).Msg("cost history not recorded")
	}
}

// AddAsNew creates a catalog wine from unmatched row i and removes the row
// from the unmatched bucket. Only valid in the matched state.
func (s *Session) AddAsNew(ctx context.Context, i int, form NewWineForm) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Matched {
		return "", eris.Wrapf(ErrInvalidState, "add wine while %s", s.state)
	}
	if i < 0 || i >= len(s.result.Unmatched) {
		return "", eris.Wrapf(ErrRowOutOfRange, "unmatched row %d", i)
	}
	if s.deps.Creator == nil {
		return "", eris.New("session: no wine creator configured")
	}

	// тип обязателен до обращения к каталогу
	typ := strings.ToLower(strings.TrimSpace(form.Type))
	if !catalog.ValidType(typ) {
		return "", eris.Wrapf(catalog.ErrInvalid, "unknown wine type %q", form.Type)
	}

	row := s.result.Unmatched[i]
	price := row.SourcePrice
	nw := catalog.NewWine{
		Name:    row.SourceName,
		Type:    typ,
		Island:  form.Island,
		Winery:  row.SourceWinery,
		Vintage: parseVintage(row.SourceVintage),
		Cost:    &price,
	}
	id, err := s.deps.Creator.CreateWine(ctx, nw)
	if err != nil {
		return "", eris.Wrapf(err, "session: create wine from row %d", i)
	}

	s.result.Unmatched = slices.Delete(s.result.Unmatched, i, i+1)
	s.updatedAt = time.Now()
	s.deps.Logger.Info().Str("session", s.id).Str("wine", id).Str("name", row.SourceName).Msg("unmatched row added to catalog")
	return id, nil
}

// "2019" -> 2019; всё остальное (s.a., NV, пусто) -> нет года
func parseVintage(v *string) *int {
	if v == nil {
		return nil
	}
	y, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil || y < 1800 || y > 2200 {
		return nil
	}
	return &y
}

// Snapshot copies the current state; slices are not shared with the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Filename:  s.filename,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.state == Matched {
		res := model.Result{
			Matched:   slices.Clone(s.result.Matched),
			Unmatched: slices.Clone(s.result.Unmatched),
			Opts:      s.result.Opts,
		}
		snap.Result = &res
		snap.Selected = slices.Clone(s.selected)
	}
	return snap
}
