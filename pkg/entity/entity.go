// Package entity extracts transit entities (stations, landmarks, transport
// types and so on) from user utterances.
//
// Extraction goes to the generative text service first, through the shared
// rate limiter and a TTL cache, and degrades to a fixed battery of regular
// expressions when the service is unavailable or answers badly. Extract never
// fails: the worst case is an empty list.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Type is an entity category.
type Type string

// Entity categories, in the order fallback results are reported.
const (
	Station       Type = "station"
	POI           Type = "poi"
	Terminal      Type = "terminal"
	Route         Type = "route"
	TransportType Type = "transport_type"
	Obstacle      Type = "obstacle"
	Facility      Type = "facility"
)

// Types lists every category in reporting order.
var Types = []Type{Station, POI, Terminal, Route, TransportType, Obstacle, Facility}

// Valid reports whether t is one of the known categories.
func (t Type) Valid() bool {
	return t.rank() >= 0
}

// IsPlace reports whether entities of this type can be a travel destination.
func (t Type) IsPlace() bool {
	return t == Station || t == POI || t == Terminal
}

func (t Type) rank() int {
	for i, known := range Types {
		if t == known {
			return i
		}
	}
	return -1
}

// UnmarshalJSON rejects unknown categories.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Type(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return fmt.Errorf("entity: unknown type %q", s)
	}
	*t = v
	return nil
}

// Entity is a typed mention in an utterance. Start and End are rune offsets
// into the source text, End exclusive.
type Entity struct {
	Type  Type   `json:"type"`
	Value string `json:"value"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// String renders the entity for logs.
func (e Entity) String() string {
	return fmt.Sprintf("%s(%q@%d:%d)", e.Type, e.Value, e.Start, e.End)
}

// First returns the first entity whose type satisfies match.
func First(entities []Entity, match func(Type) bool) (Entity, bool) {
	for _, e := range entities {
		if match(e.Type) {
			return e, true
		}
	}
	return Entity{}, false
}

// Values returns the values of all entities of type t, in order.
func Values(entities []Entity, t Type) []string {
	var out []string
	for _, e := range entities {
		if e.Type == t {
			out = append(out, e.Value)
		}
	}
	return out
}

// Normalize lower-cases text and collapses whitespace runs.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Key is the cache key for text: the SHA-256 of its normalized form.
func Key(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
