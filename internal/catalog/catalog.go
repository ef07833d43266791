// Package catalog stores the wine inventory: wines, bodegas, attached
// documents, cost history and stock movements.
package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = eris.New("catalog: not found")
	// ErrInvalid is returned for input rejected before touching storage.
	ErrInvalid = eris.New("catalog: invalid input")
	// ErrInsufficientStock is returned when a stock adjustment would go below zero.
	ErrInsufficientStock = eris.New("catalog: insufficient stock")
)

// Типы вин
var WineTypes = []string{"blanco", "tinto", "rosado", "espumoso", "dulce", "sidra"}

// Причины движения склада
const (
	ReasonSale        = "venta"
	ReasonBreakage    = "rotura"
	ReasonInternalUse = "consumo_interno"
	ReasonManual      = "ajuste_manual"
)

var StockReasons = []string{ReasonSale, ReasonBreakage, ReasonInternalUse, ReasonManual}

// DocumentTypes lists the accepted document kinds.
var DocumentTypes = []string{"factura", "lista_precios", "catalogo", "ficha_tecnica", "email", "otro"}

// Поля, по которым ведётся история цен
const (
	FieldCost      = "precio_coste"
	FieldListPrice = "precio_carta"
)

// CostReasonReconcile marks cost changes written by a price-list reconciliation.
const CostReasonReconcile = "comparador_precios"

// CostReasonManual marks cost changes entered by hand.
const CostReasonManual = "manual"

func ValidType(t string) bool { return slices.Contains(WineTypes, t) }
func ValidReason(r string) bool { return slices.Contains(StockReasons, r) }
func ValidDocType(t string) bool { return slices.Contains(DocumentTypes, t) }

type Wine struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Type             string    `json:"type"`
	Island           string    `json:"island"`
	Grapes           *string   `json:"grapes"`
	Vintage          *int      `json:"vintage"`
	DO               *string   `json:"do"`
	Winery           *string   `json:"winery"`
	BodegaID         *string   `json:"bodegaId"`
	ListPrice        *float64  `json:"listPrice"`
	Cost             *float64  `json:"cost"`
	Stock            int       `json:"stock"`
	ShortDescription *string   `json:"shortDescription"`
	PhotoURL         *string   `json:"photoUrl"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewWine is the input for CreateWine. Island may be any spelling or sub-DOP;
// it is canonicalized on create.
type NewWine struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Island    string   `json:"island"`
	Grapes    *string  `json:"grapes"`
	Vintage   *int     `json:"vintage"`
	DO        *string  `json:"do"`
	Winery    *string  `json:"winery"`
	BodegaID  *string  `json:"bodegaId"`
	ListPrice *float64 `json:"listPrice"`
	Cost      *float64 `json:"cost"`
	Stock     int      `json:"stock"`
}

// Prepare trims and validates the input and canonicalizes the island.
func (n NewWine) Prepare() (NewWine, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, eris.Wrap(ErrInvalid, "name is required")
	}
	n.Type = strings.ToLower(strings.TrimSpace(n.Type))
	if !ValidType(n.Type) {
		return n, eris.Wrapf(ErrInvalid, "unknown wine type %q", n.Type)
	}
	n.Island = CanonicalIsland(n.Island)
	if n.Stock < 0 {
		return n, eris.Wrap(ErrInvalid, "stock must not be negative")
	}
	if n.Cost != nil && *n.Cost < 0 {
		return n, eris.Wrap(ErrInvalid, "cost must not be negative")
	}
	return n, nil
}

type Bodega struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Island    *string   `json:"island"`
	DO        *string   `json:"do"`
	Website   *string   `json:"website"`
	Notes     *string   `json:"notes"`
	WineCount int       `json:"wineCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type NewBodega struct {
	Name    string  `json:"name"`
	Island  *string `json:"island"`
	DO      *string `json:"do"`
	Website *string `json:"website"`
	Notes   *string `json:"notes"`
}

func (n NewBodega) Prepare() (NewBodega, error) {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return n, eris.Wrap(ErrInvalid, "name is required")
	}
	if n.Island != nil {
		isl := CanonicalIsland(*n.Island)
		n.Island = &isl
	}
	return n, nil
}

// Document is an uploaded file (invoice, price list, data sheet...) kept in
// object storage; the row holds its metadata.
type Document struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	ObjectKey   string    `json:"objectKey"`
	URL         string    `json:"url"`
	WineID      *string   `json:"wineId"`
	BodegaID    *string   `json:"bodegaId"`
	Processed   bool      `json:"processed"`
	Extracted   *string   `json:"extracted"` // JSON, как вернул извлекатель
	CreatedAt   time.Time `json:"createdAt"`
}

type NewDocument struct {
	Type        string
	Filename    string
	ContentType string
	Size        int64
	ObjectKey   string
	URL         string
	WineID      *string
	BodegaID    *string
}

func (n NewDocument) Prepare() (NewDocument, error) {
	if n.Type == "" {
		n.Type = "otro"
	}
	if !ValidDocType(n.Type) {
		return n, eris.Wrapf(ErrInvalid, "unknown document type %q", n.Type)
	}
	if n.ObjectKey == "" {
		return n, eris.Wrap(ErrInvalid, "object key is required")
	}
	return n, nil
}

type DocumentFilter struct {
	WineID   string
	BodegaID string
}

// WineFilter narrows ListWines; zero values mean no filter.
type WineFilter struct {
	Type   string
	Island string
}

// CostChange is one entry of a wine's price history.
type CostChange struct {
	ID        string    `json:"id"`
	WineID    string    `json:"wineId"`
	Field     string    `json:"field"`
	Old       *float64  `json:"old"`
	New       float64   `json:"new"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

type StockMovement struct {
	ID         string    `json:"id"`
	WineID     string    `json:"wineId"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	Notes      *string   `json:"notes"`
	StockAfter int       `json:"stockAfter"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BodegaPatch carries a partial bodega update; nil fields are left as they are.
// An empty string clears an optional field.
type BodegaPatch struct {
	Name    *string `json:"name"`
	Island  *string `json:"island"`
	DO      *string `json:"do"`
	Website *string `json:"website"`
	Notes   *string `json:"notes"`
}

func (p BodegaPatch) apply(b Bodega) (Bodega, error) {
	if p.Name != nil {
		b.Name = strings.TrimSpace(*p.Name)
		if b.Name == "" {
			return b, eris.Wrap(ErrInvalid, "name is required")
		}
	}
	if p.Island != nil {
		b.Island = nil
		if v := strings.TrimSpace(*p.Island); v != "" {
			isl := CanonicalIsland(v)
			b.Island = &isl
		}
	}
	b.DO = patchOptional(b.DO, p.DO)
	b.Website = patchOptional(b.Website, p.Website)
	b.Notes = patchOptional(b.Notes, p.Notes)
	return b, nil
}

func patchOptional(cur, in *string) *string {
	if in == nil {
		return cur
	}
	v := strings.TrimSpace(*in)
	if v == "" {
		return nil
	}
	return &v
}

// Pairing is a dish suggested with a wine (maridaje).
type Pairing struct {
	ID          string    `json:"id"`
	WineID      string    `json:"wineId"`
	Dish        string    `json:"dish"`
	Description *string   `json:"description"`
	OnList      bool      `json:"onList"`
	AIGenerated bool      `json:"aiGenerated"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewPairing is the input for CreatePairing. OnList defaults to true; the
// position is the next free one for the wine.
type NewPairing struct {
	WineID      string  `json:"-"`
	Dish        string  `json:"dish"`
	Description *string `json:"description"`
	OnList      *bool   `json:"onList"`
	AIGenerated bool    `json:"aiGenerated"`
}

func (n NewPairing) Prepare() (NewPairing, error) {
	n.Dish = strings.TrimSpace(n.Dish)
	if n.Dish == "" {
		return n, eris.Wrap(ErrInvalid, "dish is required")
	}
	if n.WineID == "" {
		return n, eris.Wrap(ErrInvalid, "wine id is required")
	}
	n.Description = patchOptional(nil, n.Description)
	if n.OnList == nil {
		on := true
		n.OnList = &on
	}
	return n, nil
}
