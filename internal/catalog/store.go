package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"cellar-service/internal/reconcile/model"
)

// Store defines the persistence interface for the wine inventory.
type Store interface {
	// Reconciliation
	ListCatalog(ctx context.Context) ([]model.CatalogWine, error)
	UpdateCost(ctx context.Context, wineID string, cost float64) error
	RecordCostChange(ctx context.Context, c CostChange) error

	// Wines
	ListWines(ctx context.Context, f WineFilter) ([]Wine, error)
	GetWine(ctx context.Context, id string) (*Wine, error)
	CreateWine(ctx context.Context, w NewWine) (string, error)
	UpdateListPrice(ctx context.Context, wineID string, price float64) error
	SetShortDescription(ctx context.Context, wineID, text string) error
	SetPhotoURL(ctx context.Context, wineID, url string) error
	AdjustStock(ctx context.Context, wineID string, delta int, reason string, notes *string) (*StockMovement, error)
	CostHistory(ctx context.Context, wineID string) ([]CostChange, error)
	StockHistory(ctx context.Context, wineID string) ([]StockMovement, error)

	// Bodegas
	ListBodegas(ctx context.Context) ([]Bodega, error)
	GetBodega(ctx context.Context, id string) (*Bodega, error)
	CreateBodega(ctx context.Context, b NewBodega) (*Bodega, error)
	UpdateBodega(ctx context.Context, id string, p BodegaPatch) (*Bodega, error)

	// Pairings
	ListPairings(ctx context.Context, wineID string) ([]Pairing, error)
	CreatePairing(ctx context.Context, p NewPairing) (*Pairing, error)
	DeletePairing(ctx context.Context, wineID, id string) error

	// Documents
	CreateDocument(ctx context.Context, d NewDocument) (*Document, error)
	ListDocuments(ctx context.Context, f DocumentFilter) ([]Document, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	MarkDocumentProcessed(ctx context.Context, id string, extracted string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by driver: "sqlite" (dsn is a file path)
// or "postgres" (dsn is a connection string).
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres", "postgresql":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("catalog: unknown store driver %q", driver)
	}
}

func checkAdjust(delta int, reason string) error {
	if delta == 0 {
		return eris.Wrap(ErrInvalid, "stock delta must not be zero")
	}
	if !ValidReason(reason) {
		return eris.Wrapf(ErrInvalid, "unknown stock reason %q", reason)
	}
	return nil
}

func checkCost(cost float64) error {
	if cost < 0 {
		return eris.Wrap(ErrInvalid, "cost must not be negative")
	}
	return nil
}

func checkListPrice(price float64) error {
	if price < 0 {
		return eris.Wrap(ErrInvalid, "list price must not be negative")
	}
	return nil
}
