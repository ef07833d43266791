package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

const extractSystem = `Eres un experto en vinos canarios. Analiza este documento (ficha técnica, factura o lista de precios) y extrae la siguiente información en JSON:
{
  "vinos": [
    {
      "nombre": "nombre del vino",
      "bodega": "nombre de la bodega",
      "do": "denominación de origen (usar formato D.O. Nombre)",
      "uvas": "variedades de uva separadas por coma",
      "anada": número o null,
      "precio": número o null
    }
  ]
}
Si encuentras varios vinos, inclúyelos todos. Si un campo no aparece, usa null.
Responde SOLO con el JSON válido, sin markdown ni explicaciones.`

// ExtractedWine is one wine read from a document; every field may be absent.
type ExtractedWine struct {
	Name    *string  `json:"nombre"`
	Winery  *string  `json:"bodega"`
	DO      *string  `json:"do"`
	Grapes  *string  `json:"uvas"`
	Vintage *int     `json:"anada"`
	Price   *float64 `json:"precio"`
}

type Extraction struct {
	Wines []ExtractedWine `json:"vinos"`
}

// сырой ответ модели: anada/precio бывают строками
type rawExtraction struct {
	Wines []struct {
		Name    *string    `json:"nombre"`
		Winery  *string    `json:"bodega"`
		DO      *string    `json:"do"`
		Grapes  *string    `json:"uvas"`
		Vintage looseInt   `json:"anada"`
		Price   looseFloat `json:"precio"`
	} `json:"vinos"`
}

// Extract reads wines from a document. Entries without a name are dropped.
// The normalized JSON is returned alongside for storing with the document.
func Extract(ctx context.Context, p Provider, doc []byte, mime string) (*Extraction, string, error) {
	if len(doc) == 0 {
		return nil, "", eris.New("ai: empty document")
	}
	text, err := p.Generate(ctx, Request{
		System:       extractSystem,
		Prompt:       "Extrae los datos de vinos de este documento.",
		MaxTokens:    2048,
		JSON:         true,
		Document:     doc,
		DocumentMIME: mime,
	})
	if err != nil {
		return nil, "", eris.Wrap(err, "ai: extract")
	}

	var raw rawExtraction
	if err := DecodeJSON(text, &raw); err != nil {
		return nil, "", eris.Wrap(err, "ai: extract")
	}

	out := &Extraction{Wines: make([]ExtractedWine, 0, len(raw.Wines))}
	for _, w := range raw.Wines {
		if w.Name == nil || strings.TrimSpace(*w.Name) == "" {
			continue
		}
		name := strings.TrimSpace(*w.Name)
		out.Wines = append(out.Wines, ExtractedWine{
			Name:    &name,
			Winery:  blankToNil(w.Winery),
			DO:      blankToNil(w.DO),
			Grapes:  blankToNil(w.Grapes),
			Vintage: w.Vintage.v,
			Price:   w.Price.v,
		})
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, "", eris.Wrap(err, "ai: marshal extraction")
	}
	return out, string(b), nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
