package catalog

import "strings"

// DefaultIsland is used when a wine arrives without an island.
const DefaultIsland = "Tenerife"

// Islands lists canonical island values; "Islas Canarias" is the regional DOP.
var Islands = []string{
	"Tenerife", "Gran Canaria", "Lanzarote", "La Palma",
	"El Hierro", "La Gomera", "Fuerteventura", "Islas Canarias",
}

// подзоны (DOP) Тенерифе
var tenerifeZones = []string{
	"tenerife", "abona", "tacoronte", "acentejo", "güimar", "güímar",
	"orotava", "ycoden", "daute", "isora",
}

// CanonicalIsland maps an island name or sub-DOP to its canonical island.
// Unknown values are returned trimmed; empty input yields DefaultIsland.
func CanonicalIsland(isla string) string {
	isla = strings.TrimSpace(isla)
	if isla == "" {
		return DefaultIsland
	}
	lower := strings.ToLower(isla)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	// региональная DOP проверяется раньше отдельных островов
	switch {
	case has("islas canarias"):
		return "Islas Canarias"
	case has(tenerifeZones...):
		return "Tenerife"
	case has("gran canaria", "monte lentiscal") || lower == "gc":
		return "Gran Canaria"
	case has("lanzarote"):
		return "Lanzarote"
	case has("palma"):
		return "La Palma"
	case has("hierro"):
		return "El Hierro"
	case has("gomera"):
		return "La Gomera"
	case has("fuerteventura"):
		return "Fuerteventura"
	}
	return isla
}
