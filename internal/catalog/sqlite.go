package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"cellar-service/internal/reconcile/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bodegas (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	island       TEXT,
	denomination TEXT,
	website      TEXT,
	notes        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS wines (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	type              TEXT NOT NULL,
	island            TEXT NOT NULL,
	grapes            TEXT,
	vintage           INTEGER,
	denomination      TEXT,
	winery            TEXT,
	bodega_id         TEXT REFERENCES bodegas(id),
	list_price        REAL,
	cost              REAL,
	stock             INTEGER NOT NULL DEFAULT 0,
	short_description TEXT,
	photo_url         TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size         INTEGER NOT NULL DEFAULT 0,
	object_key   TEXT NOT NULL,
	url          TEXT NOT NULL,
	wine_id      TEXT REFERENCES wines(id),
	bodega_id    TEXT REFERENCES bodegas(id),
	processed    BOOLEAN NOT NULL DEFAULT 0,
	extracted    TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cost_history (
	id         TEXT PRIMARY KEY,
	wine_id    TEXT NOT NULL REFERENCES wines(id),
	field      TEXT NOT NULL,
	old_value  REAL,
	new_value  REAL NOT NULL,
	reason     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id          TEXT PRIMARY KEY,
	wine_id     TEXT NOT NULL REFERENCES wines(id),
	delta       INTEGER NOT NULL,
	reason      TEXT NOT NULL,
	notes       TEXT,
	stock_after INTEGER NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pairings (
	id           TEXT PRIMARY KEY,
	wine_id      TEXT NOT NULL REFERENCES wines(id) ON DELETE CASCADE,
	dish         TEXT NOT NULL,
	description  TEXT,
	on_list      BOOLEAN NOT NULL DEFAULT 1,
	ai_generated BOOLEAN NOT NULL DEFAULT 0,
	position     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_wines_bodega_id ON wines(bodega_id);
CREATE INDEX IF NOT EXISTS idx_documents_wine_id ON documents(wine_id);
CREATE INDEX IF NOT EXISTS idx_documents_bodega_id ON documents(bodega_id);
CREATE INDEX IF NOT EXISTS idx_cost_history_wine_id ON cost_history(wine_id);
CREATE INDEX IF NOT EXISTS idx_stock_movements_wine_id ON stock_movements(wine_id);
CREATE INDEX IF NOT EXISTS idx_pairings_wine_id ON pairings(wine_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListCatalog returns the matching snapshot in a stable order (name, id).
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]model.CatalogWine, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, cost FROM wines ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog")
	}
	defer rows.Close()

	out := make([]model.CatalogWine, 0)
	for rows.Next() {
		var w model.CatalogWine
		if err := rows.Scan(&w.ID, &w.Name, &w.CurrentCost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog wine")
		}
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate catalog")
}

func (s *SQLiteStore) UpdateCost(ctx context.Context, wineID string, cost float64) error {
	if err := checkCost(cost); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET cost = ?, updated_at = ? WHERE id = ?`,
		cost, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update cost %s", wineID)
	}
	return checkRowsAffected(res, "wine", wineID)
}

func (s *SQLiteStore) UpdateListPrice(ctx context.Context, wineID string, price float64) error {
	if err := checkListPrice(price); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET list_price = ?, updated_at = ? WHERE id = ?`,
		price, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update list price %s", wineID)
	}
	return checkRowsAffected(res, "wine", wineID)
}

func (s *SQLiteStore) RecordCostChange(ctx context.Context, c CostChange) error {
	if c.Field == "" {
		c.Field = FieldCost
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cost_history (id, wine_id, field, old_value, new_value, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), c.WineID, c.Field, c.Old, c.New, c.Reason, s.now(),
	)
	return eris.Wrapf(err, "sqlite: record cost change %s", c.WineID)
}

func (s *SQLiteStore) ListWines(ctx context.Context, f WineFilter) ([]Wine, error) {
	query := `SELECT ` + wineColumns + ` FROM wines WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Island != "" {
		query += ` AND island = ?`
		args = append(args, CanonicalIsland(f.Island))
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wines")
	}
	defer rows.Close()

	out := make([]Wine, 0)
	for rows.Next() {
		w, err := scanWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan wine")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate wines")
}

func (s *SQLiteStore) GetWine(ctx context.Context, id string) (*Wine, error) {
	w, err := scanWine(s.db.QueryRowContext(ctx, `SELECT `+wineColumns+` FROM wines WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "wine %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get wine %s", id)
	}
	return w, nil
}

func (s *SQLiteStore) CreateWine(ctx context.Context, in NewWine) (string, error) {
	in, err := in.Prepare()
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wines (id, name, type, island, grapes, vintage, denomination, winery, bodega_id,
			list_price, cost, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Name, in.Type, in.Island, in.Grapes, in.Vintage, in.DO, in.Winery, in.BodegaID,
		in.ListPrice, in.Cost, in.Stock, now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert wine")
	}
	return id, nil
}

func (s *SQLiteStore) SetShortDescription(ctx context.Context, wineID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET short_description = ?, updated_at = ? WHERE id = ?`,
		text, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set description %s", wineID)
	}
	return checkRowsAffected(res, "wine", wineID)
}

func (s *SQLiteStore) SetPhotoURL(ctx context.Context, wineID, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wines SET photo_url = ?, updated_at = ? WHERE id = ?`,
		url, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set photo %s", wineID)
	}
	return checkRowsAffected(res, "wine", wineID)
}

// AdjustStock applies delta atomically and records the movement. The stock
// never goes below zero.
func (s *SQLiteStore) AdjustStock(ctx context.Context, wineID string, delta int, reason string, notes *string) (*StockMovement, error) {
	if err := checkAdjust(delta, reason); err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin adjust stock")
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	var after int
	err = tx.QueryRowContext(ctx,
		`UPDATE wines SET stock = stock + ?, updated_at = ? WHERE id = ? AND stock + ? >= 0 RETURNING stock`,
		delta, now, wineID, delta,
	).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM wines WHERE id = ?`, wineID).Scan(&one); errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "wine %s", wineID)
		}
		return nil, eris.Wrapf(ErrInsufficientStock, "wine %s, delta %d", wineID, delta)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update stock %s", wineID)
	}

	m := &StockMovement{
		ID:         uuid.New().String(),
		WineID:     wineID,
		Delta:      delta,
		Reason:     reason,
		Notes:      notes,
		StockAfter: after,
		CreatedAt:  now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO stock_movements (id, wine_id, delta, reason, notes, stock_after, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.WineID, m.Delta, m.Reason, m.Notes, m.StockAfter, m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert stock movement")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit adjust stock")
	}
	return m, nil
}

// CostHistory returns the wine's cost changes, newest first.
func (s *SQLiteStore) CostHistory(ctx context.Context, wineID string) ([]CostChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+costColumns+` FROM cost_history WHERE wine_id = ? ORDER BY created_at DESC, rowid DESC`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: cost history %s", wineID)
	}
	defer rows.Close()

	out := make([]CostChange, 0)
	for rows.Next() {
		c, err := scanCostChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cost change")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cost history")
}

// StockHistory returns the wine's stock movements, newest first.
func (s *SQLiteStore) StockHistory(ctx context.Context, wineID string) ([]StockMovement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE wine_id = ? ORDER BY created_at DESC, rowid DESC`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: stock history %s", wineID)
	}
	defer rows.Close()

	out := make([]StockMovement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stock movement")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate stock history")
}

func (s *SQLiteStore) ListBodegas(ctx context.Context) ([]Bodega, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bodegaColumns+` FROM bodegas b ORDER BY b.name, b.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bodegas")
	}
	defer rows.Close()

	out := make([]Bodega, 0)
	for rows.Next() {
		b, err := scanBodega(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bodega")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate bodegas")
}

func (s *SQLiteStore) GetBodega(ctx context.Context, id string) (*Bodega, error) {
	b, err := scanBodega(s.db.QueryRowContext(ctx, `SELECT `+bodegaColumns+` FROM bodegas b WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "bodega %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get bodega %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) CreateBodega(ctx context.Context, in NewBodega) (*Bodega, error) {
	in, err := in.Prepare()
	if err != nil {
		return nil, err
	}
	b := &Bodega{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Island:    in.Island,
		DO:        in.DO,
		Website:   in.Website,
		Notes:     in.Notes,
		CreatedAt: s.now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bodegas (id, name, island, denomination, website, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Island, b.DO, b.Website, b.Notes, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert bodega")
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBodega(ctx context.Context, id string, p BodegaPatch) (*Bodega, error) {
	cur, err := s.GetBodega(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := p.apply(*cur)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bodegas SET name = ?, island = ?, denomination = ?, website = ?, notes = ? WHERE id = ?`,
		b.Name, b.Island, b.DO, b.Website, b.Notes, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update bodega %s", id)
	}
	if err := checkRowsAffected(res, "bodega", id); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListPairings returns the wine's pairings in list order.
func (s *SQLiteStore) ListPairings(ctx context.Context, wineID string) ([]Pairing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pairingColumns+` FROM pairings WHERE wine_id = ? ORDER BY position, created_at`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pairings %s", wineID)
	}
	defer rows.Close()

	out := make([]Pairing, 0)
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pairing")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pairings")
}

// CreatePairing appends a pairing after the wine's existing ones.
func (s *SQLiteStore) CreatePairing(ctx context.Context, in NewPairing) (*Pairing, error) {
	in, err := in.Prepare()
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create pairing")
	}
	defer tx.Rollback() //nolint:errcheck

	var pos int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM pairings WHERE wine_id = w.id) FROM wines w WHERE w.id = ?`, in.WineID,
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "wine %s", in.WineID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: pairing position %s", in.WineID)
	}

	p := &Pairing{
		ID:          uuid.New().String(),
		WineID:      in.WineID,
		Dish:        in.Dish,
		Description: in.Description,
		OnList:      *in.OnList,
		AIGenerated: in.AIGenerated,
		Position:    pos,
		CreatedAt:   s.now(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pairings (id, wine_id, dish, description, on_list, ai_generated, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WineID, p.Dish, p.Description, p.OnList, p.AIGenerated, p.Position, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert pairing")
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit pairing")
	}
	return p, nil
}

func (s *SQLiteStore) DeletePairing(ctx context.Context, wineID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pairings WHERE id = ? AND wine_id = ?`, id, wineID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete pairing %s", id)
	}
	return checkRowsAffected(res, "pairing", id)
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, in NewDocument) (*Document, error) {
	in, err := in.Prepare()
	if err != nil {
		return nil, err
	}
	d := &Document{
		ID:          uuid.New().String(),
		Type:        in.Type,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		Size:        in.Size,
		ObjectKey:   in.ObjectKey,
		URL:         in.URL,
		WineID:      in.WineID,
		BodegaID:    in.BodegaID,
		CreatedAt:   s.now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, type, filename, content_type, size, object_key, url, wine_id, bodega_id, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		d.ID, d.Type, d.Filename, d.ContentType, d.Size, d.ObjectKey, d.URL, d.WineID, d.BodegaID, d.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert document")
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any
	if f.WineID != "" {
		query += ` AND wine_id = ?`
		args = append(args, f.WineID)
	}
	if f.BodegaID != "" {
		query += ` AND bodega_id = ?`
		args = append(args, f.BodegaID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate documents")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) MarkDocumentProcessed(ctx context.Context, id string, extracted string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET processed = 1, extracted = ? WHERE id = ?`, extracted, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark document %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
