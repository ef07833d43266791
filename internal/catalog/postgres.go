package catalog

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"cellar-service/internal/reconcile/model"
)

// Pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
	now  func() time.Time
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bodegas (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	island       TEXT,
	denomination TEXT,
	website      TEXT,
	notes        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
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
	list_price        DOUBLE PRECISION,
	cost              DOUBLE PRECISION,
	stock             INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	short_description TEXT,
	photo_url         TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size         BIGINT NOT NULL DEFAULT 0,
	object_key   TEXT NOT NULL,
	url          TEXT NOT NULL,
	wine_id      TEXT REFERENCES wines(id),
	bodega_id    TEXT REFERENCES bodegas(id),
	processed    BOOLEAN NOT NULL DEFAULT false,
	extracted    TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cost_history (
	id         TEXT PRIMARY KEY,
	wine_id    TEXT NOT NULL REFERENCES wines(id),
	field      TEXT NOT NULL,
	old_value  DOUBLE PRECISION,
	new_value  DOUBLE PRECISION NOT NULL,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_movements (
	id          TEXT PRIMARY KEY,
	wine_id     TEXT NOT NULL REFERENCES wines(id),
	delta       INTEGER NOT NULL,
	reason      TEXT NOT NULL,
	notes       TEXT,
	stock_after INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pairings (
	id           TEXT PRIMARY KEY,
	wine_id      TEXT NOT NULL REFERENCES wines(id) ON DELETE CASCADE,
	dish         TEXT NOT NULL,
	description  TEXT,
	on_list      BOOLEAN NOT NULL DEFAULT true,
	ai_generated BOOLEAN NOT NULL DEFAULT false,
	position     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_wines_name ON wines(name);
CREATE INDEX IF NOT EXISTS idx_wines_bodega_id ON wines(bodega_id);
CREATE INDEX IF NOT EXISTS idx_documents_wine_id ON documents(wine_id);
CREATE INDEX IF NOT EXISTS idx_documents_bodega_id ON documents(bodega_id);
CREATE INDEX IF NOT EXISTS idx_cost_history_wine_id ON cost_history(wine_id);
CREATE INDEX IF NOT EXISTS idx_stock_movements_wine_id ON stock_movements(wine_id);
CREATE INDEX IF NOT EXISTS idx_pairings_wine_id ON pairings(wine_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListCatalog(ctx context.Context) ([]model.CatalogWine, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, cost FROM wines ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog")
	}
	defer rows.Close()

	out := make([]model.CatalogWine, 0)
	for rows.Next() {
		var w model.CatalogWine
		if err := rows.Scan(&w.ID, &w.Name, &w.CurrentCost); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog wine")
		}
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate catalog")
}

func (s *PostgresStore) UpdateCost(ctx context.Context, wineID string, cost float64) error {
	if err := checkCost(cost); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET cost = $1, updated_at = $2 WHERE id = $3`,
		cost, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update cost %s", wineID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "wine %s", wineID)
	}
	return nil
}

func (s *PostgresStore) UpdateListPrice(ctx context.Context, wineID string, price float64) error {
	if err := checkListPrice(price); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET list_price = $1, updated_at = $2 WHERE id = $3`,
		price, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update list price %s", wineID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "wine %s", wineID)
	}
	return nil
}

func (s *PostgresStore) RecordCostChange(ctx context.Context, c CostChange) error {
	if c.Field == "" {
		c.Field = FieldCost
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cost_history (id, wine_id, field, old_value, new_value, reason, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), c.WineID, c.Field, c.Old, c.New, c.Reason, s.now(),
	)
	return eris.Wrapf(err, "postgres: record cost change %s", c.WineID)
}

func (s *PostgresStore) ListWines(ctx context.Context, f WineFilter) ([]Wine, error) {
	query := `SELECT ` + wineColumns + ` FROM wines WHERE 1=1`
	var args []any
	if f.Type != "" {
		args = append(args, f.Type)
		query += ` AND type = $1`
	}
	if f.Island != "" {
		args = append(args, CanonicalIsland(f.Island))
		query += ` AND island = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY name, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wines")
	}
	defer rows.Close()

	out := make([]Wine, 0)
	for rows.Next() {
		w, err := scanWine(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan wine")
		}
		out = append(out, *w)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate wines")
}

func (s *PostgresStore) GetWine(ctx context.Context, id string) (*Wine, error) {
	w, err := scanWine(s.pool.QueryRow(ctx, `SELECT `+wineColumns+` FROM wines WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "wine %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get wine %s", id)
	}
	return w, nil
}

func (s *PostgresStore) CreateWine(ctx context.Context, in NewWine) (string, error) {
	in, err := in.Prepare()
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	now := s.now()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO wines (id, name, type, island, grapes, vintage, denomination, winery, bodega_id,
			list_price, cost, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, in.Name, in.Type, in.Island, in.Grapes, in.Vintage, in.DO, in.Winery, in.BodegaID,
		in.ListPrice, in.Cost, in.Stock, now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert wine")
	}
	return id, nil
}

func (s *PostgresStore) SetShortDescription(ctx context.Context, wineID, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET short_description = $1, updated_at = $2 WHERE id = $3`,
		text, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set description %s", wineID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "wine %s", wineID)
	}
	return nil
}

func (s *PostgresStore) SetPhotoURL(ctx context.Context, wineID, url string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wines SET photo_url = $1, updated_at = $2 WHERE id = $3`,
		url, s.now(), wineID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set photo %s", wineID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "wine %s", wineID)
	}
	return nil
}

func (s *PostgresStore) AdjustStock(ctx context.Context, wineID string, delta int, reason string, notes *string) (*StockMovement, error) {
	if err := checkAdjust(delta, reason); err != nil {
		return nil, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin adjust stock")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	var after int
	err = tx.QueryRow(ctx,
		`UPDATE wines SET stock = stock + $1, updated_at = $2 WHERE id = $3 AND stock + $1 >= 0 RETURNING stock`,
		delta, now, wineID,
	).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		var one int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM wines WHERE id = $1`, wineID).Scan(&one); errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "wine %s", wineID)
		}
		return nil, eris.Wrapf(ErrInsufficientStock, "wine %s, delta %d", wineID, delta)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update stock %s", wineID)
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
	_, err = tx.Exec(ctx,
		`INSERT INTO stock_movements (id, wine_id, delta, reason, notes, stock_after, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.WineID, m.Delta, m.Reason, m.Notes, m.StockAfter, m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert stock movement")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit adjust stock")
	}
	return m, nil
}

func (s *PostgresStore) CostHistory(ctx context.Context, wineID string) ([]CostChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+costColumns+` FROM cost_history WHERE wine_id = $1 ORDER BY created_at DESC`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: cost history %s", wineID)
	}
	defer rows.Close()

	out := make([]CostChange, 0)
	for rows.Next() {
		c, err := scanCostChange(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan cost change")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cost history")
}

func (s *PostgresStore) StockHistory(ctx context.Context, wineID string) ([]StockMovement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+movementColumns+` FROM stock_movements WHERE wine_id = $1 ORDER BY created_at DESC`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: stock history %s", wineID)
	}
	defer rows.Close()

	out := make([]StockMovement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stock movement")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate stock history")
}

func (s *PostgresStore) ListBodegas(ctx context.Context) ([]Bodega, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+bodegaColumns+` FROM bodegas b ORDER BY b.name, b.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bodegas")
	}
	defer rows.Close()

	out := make([]Bodega, 0)
	for rows.Next() {
		b, err := scanBodega(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan bodega")
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate bodegas")
}

func (s *PostgresStore) GetBodega(ctx context.Context, id string) (*Bodega, error) {
	b, err := scanBodega(s.pool.QueryRow(ctx, `SELECT `+bodegaColumns+` FROM bodegas b WHERE b.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "bodega %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get bodega %s", id)
	}
	return b, nil
}

func (s *PostgresStore) CreateBodega(ctx context.Context, in NewBodega) (*Bodega, error) {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO bodegas (id, name, island, denomination, website, notes, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Name, b.Island, b.DO, b.Website, b.Notes, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert bodega")
	}
	return b, nil
}

func (s *PostgresStore) UpdateBodega(ctx context.Context, id string, p BodegaPatch) (*Bodega, error) {
	cur, err := s.GetBodega(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := p.apply(*cur)
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE bodegas SET name = $1, island = $2, denomination = $3, website = $4, notes = $5 WHERE id = $6`,
		b.Name, b.Island, b.DO, b.Website, b.Notes, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update bodega %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "bodega %s", id)
	}
	return &b, nil
}

func (s *PostgresStore) ListPairings(ctx context.Context, wineID string) ([]Pairing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pairingColumns+` FROM pairings WHERE wine_id = $1 ORDER BY position, created_at`, wineID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pairings %s", wineID)
	}
	defer rows.Close()

	out := make([]Pairing, 0)
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pairing")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate pairings")
}

// CreatePairing вычисляет позицию и вставляет одной командой.
func (s *PostgresStore) CreatePairing(ctx context.Context, in NewPairing) (*Pairing, error) {
	in, err := in.Prepare()
	if err != nil {
		return nil, err
	}
	p := &Pairing{
		ID:          uuid.New().String(),
		WineID:      in.WineID,
		Dish:        in.Dish,
		Description: in.Description,
		OnList:      *in.OnList,
		AIGenerated: in.AIGenerated,
		CreatedAt:   s.now(),
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO pairings (id, wine_id, dish, description, on_list, ai_generated, position, created_at)
		SELECT $1, w.id, $3, $4, $5, $6, (SELECT COUNT(*) FROM pairings WHERE wine_id = w.id), $7
		FROM wines w WHERE w.id = $2
		RETURNING position`,
		p.ID, p.WineID, p.Dish, p.Description, p.OnList, p.AIGenerated, p.CreatedAt,
	).Scan(&p.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "wine %s", in.WineID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert pairing")
	}
	return p, nil
}

func (s *PostgresStore) DeletePairing(ctx context.Context, wineID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pairings WHERE id = $1 AND wine_id = $2`, id, wineID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete pairing %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "pairing %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, in NewDocument) (*Document, error) {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, type, filename, content_type, size, object_key, url, wine_id, bodega_id, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)`,
		d.ID, d.Type, d.Filename, d.ContentType, d.Size, d.ObjectKey, d.URL, d.WineID, d.BodegaID, d.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert document")
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	var args []any
	if f.WineID != "" {
		args = append(args, f.WineID)
		query += ` AND wine_id = $1`
	}
	if f.BodegaID != "" {
		args = append(args, f.BodegaID)
		query += ` AND bodega_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	out := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate documents")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return d, nil
}

func (s *PostgresStore) MarkDocumentProcessed(ctx context.Context, id string, extracted string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET processed = true, extracted = $1 WHERE id = $2`, extracted, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}
