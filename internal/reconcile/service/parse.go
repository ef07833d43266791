package service

import (
	"strings"

	"cellar-service/internal/reconcile/model"
	"cellar-service/internal/utils"
)

// HeaderScanRows is how many leading rows are searched for the header.
const HeaderScanRows = 10

// Ключевые слова заголовков (сравниваются после Normalize, подстрокой)
var (
	nameKeywords    = normalizeAll("nombre", "vino", "wine", "producto", "product", "referencia", "artículo", "descripción", "name")
	priceKeywords   = normalizeAll("precio", "price", "coste", "cost", "pvp", "p.v.p", "importe", "tarifa", "€")
	wineryKeywords  = normalizeAll("bodega", "productor", "producer", "winery")
	vintageKeywords = normalizeAll("añada", "anada", "vintage", "año", "year")
)

// Columns holds resolved column indices; -1 means the column was not found.
type Columns struct {
	HeaderRow int
	Name      int
	Price     int
	Winery    int
	Vintage   int
}

// ParseRows locates the header among the first HeaderScanRows rows and
// extracts every row below it that has a name and a parseable price.
// No header means no usable data: the result is empty, not an error.
func ParseRows(raw [][]string) []model.ExternalPriceRow {
	cols, ok := DetectColumns(raw)
	if !ok {
		return nil
	}

	out := make([]model.ExternalPriceRow, 0, len(raw)-cols.HeaderRow-1)
	for _, cells := range raw[cols.HeaderRow+1:] {
		name := strings.TrimSpace(cell(cells, cols.Name))
		if name == "" {
			continue
		}
		price, ok := utils.ParsePrice(cell(cells, cols.Price))
		if !ok {
			continue
		}
		out = append(out, model.ExternalPriceRow{
			Name:    name,
			Price:   price,
			Winery:  optionalCell(cells, cols.Winery),
			Vintage: optionalCell(cells, cols.Vintage),
		})
	}
	return out
}

// DetectColumns returns the first header-like row (top-down) within the scan
// window and its column indices.
func DetectColumns(raw [][]string) (Columns, bool) {
	limit := min(len(raw), HeaderScanRows)
	for i := 0; i < limit; i++ {
		if cols, ok := headerColumns(raw[i]); ok {
			cols.HeaderRow = i
			return cols, true
		}
	}
	return Columns{HeaderRow: -1, Name: -1, Price: -1, Winery: -1, Vintage: -1}, false
}

func headerColumns(cells []string) (Columns, bool) {
	norm := make([]string, len(cells))
	filled := 0
	for i, c := range cells {
		norm[i] = Normalize(c)
		if norm[i] != "" {
			filled++
		}
	}
	if filled < 2 {
		return Columns{}, false
	}

	// цена первой: "Precio vino €" это цена, а не название
	price := firstMatch(norm, priceKeywords)
	if price < 0 {
		return Columns{}, false
	}
	// "Winery"/"Productor" содержат "wine"/"producto": сначала ищем ячейку без них
	name := firstMatch(filterOut(norm, wineryKeywords), nameKeywords, price)
	if name < 0 {
		name = firstMatch(norm, nameKeywords, price)
	}
	if name < 0 {
		return Columns{}, false
	}
	winery := firstMatch(norm, wineryKeywords, price, name)
	vintage := firstMatch(norm, vintageKeywords, price, name, winery)

	return Columns{Name: name, Price: price, Winery: winery, Vintage: vintage}, true
}

// firstMatch returns the first cell containing any keyword, skipping the
// excluded indices; -1 when nothing matches.
func firstMatch(cells []string, keywords []string, exclude ...int) int {
	for i, c := range cells {
		if c == "" || contains(exclude, i) {
			continue
		}
		for _, k := range keywords {
			if strings.Contains(c, k) {
				return i
			}
		}
	}
	return -1
}

// filterOut blanks cells that contain any of the keywords, keeping positions.
func filterOut(cells []string, keywords []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if firstMatch([]string{c}, keywords) < 0 {
			out[i] = c
		}
	}
	return out
}

func cell(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// пустая ячейка или колонки нет → nil, не ""
func optionalCell(cells []string, i int) *string {
	v := strings.TrimSpace(cell(cells, i))
	if v == "" {
		return nil
	}
	return &v
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func normalizeAll(words ...string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = Normalize(w)
	}
	return out
}
