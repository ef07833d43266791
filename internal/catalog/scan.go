package catalog

// Общие списки колонок и сканеры: database/sql (*sql.Row, *sql.Rows) и
// pgx (pgx.Row, pgx.Rows) оба удовлетворяют scannable.

const wineColumns = `id, name, type, island, grapes, vintage, denomination, winery, bodega_id,
	list_price, cost, stock, short_description, photo_url, created_at, updated_at`

const bodegaColumns = `b.id, b.name, b.island, b.denomination, b.website, b.notes,
	(SELECT COUNT(*) FROM wines w WHERE w.bodega_id = b.id), b.created_at`

const documentColumns = `id, type, filename, content_type, size, object_key, url,
	wine_id, bodega_id, processed, extracted, created_at`

const costColumns = `id, wine_id, field, old_value, new_value, reason, created_at`

const pairingColumns = `id, wine_id, dish, description, on_list, ai_generated, position, created_at`

const movementColumns = `id, wine_id, delta, reason, notes, stock_after, created_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanWine(row scannable) (*Wine, error) {
	var w Wine
	err := row.Scan(&w.ID, &w.Name, &w.Type, &w.Island, &w.Grapes, &w.Vintage, &w.DO, &w.Winery,
		&w.BodegaID, &w.ListPrice, &w.Cost, &w.Stock, &w.ShortDescription, &w.PhotoURL,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func scanBodega(row scannable) (*Bodega, error) {
	var b Bodega
	err := row.Scan(&b.ID, &b.Name, &b.Island, &b.DO, &b.Website, &b.Notes, &b.WineCount, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanDocument(row scannable) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Type, &d.Filename, &d.ContentType, &d.Size, &d.ObjectKey, &d.URL,
		&d.WineID, &d.BodegaID, &d.Processed, &d.Extracted, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanCostChange(row scannable) (*CostChange, error) {
	var c CostChange
	if err := row.Scan(&c.ID, &c.WineID, &c.Field, &c.Old, &c.New, &c.Reason, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMovement(row scannable) (*StockMovement, error) {
	var m StockMovement
	if err := row.Scan(&m.ID, &m.WineID, &m.Delta, &m.Reason, &m.Notes, &m.StockAfter, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanPairing(row scannable) (*Pairing, error) {
	var p Pairing
	err := row.Scan(&p.ID, &p.WineID, &p.Dish, &p.Description, &p.OnList, &p.AIGenerated, &p.Position, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
