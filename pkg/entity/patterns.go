package entity

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// pattern is one fallback rule.
type pattern struct {
	typ Type
	re  *regexp.Regexp
}

func words(alternatives ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`)
}

// fallbackPatterns is the deterministic battery used when the generative
// service cannot be reached.
var fallbackPatterns = []pattern{
	// MRT
	{Station, words("Bundaran HI", "Dukuh Atas", "Bendungan Hilir", "Setiabudi", "Istora", "Senayan",
		"ASEAN", "Blok M", "Blok A", "Haji Nawi", "Fatmawati", "Cipete Raya", "Lebak Bulus")},
	// KRL
	{Station, words("Tanah Abang", "Sudirman", "Manggarai", "Cikini", "Gondangdia", "Juanda", "Sawah Besar",
		"Jayakarta", "Jakarta Kota", "Tebet", "Cawang", "Duren Kalibata", "Pasar Minggu")},
	{POI, words("Grand Indonesia", "Plaza Indonesia", "Pacific Place", "Senayan City", "Plaza Senayan",
		"Sarinah", "Central Park", "Taman Anggrek", "Kota Kasablanka")},
	{POI, words("Monas", "Glodok", "Kota Tua", "Thamrin City")},
	{Terminal, words("Kalideres", "Pulogadung", "Kampung Melayu", "Tanjung Priok", "Pinang Ranti",
		"Grogol", "Harmoni", "Ragunan", "Pluit")},
	{Route, regexp.MustCompile(`(?i)\b(?:koridor|corridor|route|rute)\s+\d{1,2}[A-Z]?\b`)},
	{TransportType, words("MRT", "KRL", "TransJakarta", "bus", "train", "kereta")},
	{Obstacle, words("pothole", "puddle", "construction", "barrier", "pole")},
	{Facility, words("elevator", "escalator", "lift", "stairs", "ramp", "toilet", "gate", "exit", "entrance")},
}

// MatchPatterns runs the fallback battery over text. Results are ordered by
// category, then by position.
func MatchPatterns(text string) []Entity {
	entities := []Entity{}
	seen := make(map[Entity]bool)

	for _, p := range fallbackPatterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start := utf8.RuneCountInString(text[:loc[0]])
			e := Entity{
				Type:  p.typ,
				Value: text[loc[0]:loc[1]],
				Start: start,
				End:   start + utf8.RuneCountInString(text[loc[0]:loc[1]]),
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			entities = append(entities, e)
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Type != b.Type {
			return a.Type.rank() < b.Type.rank()
		}
		return a.Start < b.Start
	})
	return entities
}

// anchor locates the first case-insensitive occurrence of value in text,
// allowing any run of whitespace between its words, and returns its rune
// span along with the text as written.
func anchor(text, value string) (Entity, bool) {
	words := strings.Fields(value)
	if len(words) == 0 {
		return Entity{}, false
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)` + strings.Join(words, `\s+`))
	if err != nil {
		return Entity{}, false
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return Entity{}, false
	}
	start := utf8.RuneCountInString(text[:loc[0]])
	return Entity{
		Value: text[loc[0]:loc[1]],
		Start: start,
		End:   start + utf8.RuneCountInString(text[loc[0]:loc[1]]),
	}, true
}
