package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// DescriptionField selects what Describe writes.
type DescriptionField string

const (
	FieldShort   DescriptionField = "descripcion_corta"
	FieldPairing DescriptionField = "maridaje"
	FieldLong    DescriptionField = "descripcion_larga"
)

// ShortMaxRunes caps the one-sentence floor presentation.
const ShortMaxRunes = 160

func (f DescriptionField) Valid() bool {
	switch f {
	case FieldShort, FieldPairing, FieldLong:
		return true
	}
	return false
}

// WineInfo is the context sent to the model.
type WineInfo struct {
	Name    string
	Type    string
	Island  string
	Grapes  *string
	Vintage *int
	Winery  *string
	DO      *string
}

// LongDescription is the three-part sheet: vineyard, tasting notes, pairing.
type LongDescription struct {
	Vineyard string `json:"vinedo"`
	Tasting  string `json:"cata"`
	Pairing  string `json:"maridaje"`
}

type Description struct {
	Field DescriptionField `json:"field"`
	Text  string           `json:"text,omitempty"`
	Long  *LongDescription `json:"long,omitempty"`
}

const sommelier = "Eres sommelier de un restaurante con estrella Michelin en Canarias. "

var describePrompts = map[DescriptionField]string{
	FieldShort: sommelier + "Escribe UNA frase de máximo 160 caracteres para presentar este vino en sala. " +
		"Tono elegante, evocador, sin tecnicismos. Solo la frase, sin comillas.",
	FieldPairing: sommelier + "Sugiere 2-3 maridajes concretos para este vino con platos de cocina canaria o mediterránea. " +
		"Tono profesional pero accesible. Responde con texto plano, sin JSON ni markdown.",
	FieldLong: sommelier + `Genera un JSON con exactamente 3 campos:
- "vinedo": descripción del viñedo y elaboración (2-3 frases, tono evocador)
- "cata": notas de cata (2-3 frases, sensorial y elegante)
- "maridaje": sugerencia de maridaje con cocina canaria (1-2 frases)

Responde SOLO con el JSON válido, sin markdown ni explicaciones.`,
}

// Describe asks the provider for one description field of the wine.
func Describe(ctx context.Context, p Provider, w WineInfo, field DescriptionField) (*Description, error) {
	if !field.Valid() {
		return nil, eris.Errorf("ai: unknown description field %q", field)
	}
	text, err := p.Generate(ctx, Request{
		System:    describePrompts[field],
		Prompt:    wineContext(w),
		MaxTokens: 1024,
		JSON:      field == FieldLong,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ai: describe %s", field)
	}

	out := &Description{Field: field}
	switch field {
	case FieldShort:
		out.Text = truncateRunes(strings.Trim(strings.TrimSpace(text), `"«»“”`), ShortMaxRunes)
	case FieldPairing:
		out.Text = strings.TrimSpace(text)
	case FieldLong:
		var long LongDescription
		if err := DecodeJSON(text, &long); err != nil {
			return nil, eris.Wrap(err, "ai: describe long")
		}
		out.Long = &long
	}
	return out, nil
}

func wineContext(w WineInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Vino: %s\nTipo: %s\nIsla: %s\n", w.Name, w.Type, w.Island)
	if w.Grapes != nil && *w.Grapes != "" {
		fmt.Fprintf(&sb, "Uvas: %s\n", *w.Grapes)
	}
	if w.Vintage != nil {
		fmt.Fprintf(&sb, "Añada: %d\n", *w.Vintage)
	}
	if w.Winery != nil && *w.Winery != "" {
		fmt.Fprintf(&sb, "Bodega: %s\n", *w.Winery)
	}
	if w.DO != nil && *w.DO != "" {
		fmt.Fprintf(&sb, "DO: %s\n", *w.DO)
	}
	return sb.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
