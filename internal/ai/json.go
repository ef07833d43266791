package ai

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"

	"cellar-service/internal/utils"
)

// DecodeJSON parses a model answer into v. Markdown fences and prose around
// the object are dropped; malformed JSON (trailing commas, single quotes,
// unclosed braces) goes through json-repair before giving up.
func DecodeJSON(text string, v any) error {
	s := extractObject(text)
	if s == "" {
		return eris.New("ai: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	repaired, err := jsonrepair.RepairJSON(s)
	if err != nil {
		return eris.Wrap(err, "ai: repair JSON")
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return eris.Wrap(err, "ai: decode JSON")
	}
	return nil
}

// от первой "{" до последней "}"; без закрывающей берём хвост целиком (чинит repair)
func extractObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text[start:]), "```"))
	}
	return text[start : end+1]
}

// looseInt accepts 2021, "2021" or null.
type looseInt struct{ v *int }

func (l *looseInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s *string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(*s))
	}
	if n == "" {
		return nil
	}
	i, err := n.Int64()
	if err != nil {
		// "s.a." (sin añada) и прочий текст: значения нет
		return nil
	}
	v := int(i)
	l.v = &v
	return nil
}

// looseFloat accepts 12.5, "12,50 €" or null.
type looseFloat struct{ v *float64 }

func (l *looseFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		l.v = &f
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if p, ok := utils.ParsePrice(s); ok {
		l.v = &p
	}
	return nil
}
