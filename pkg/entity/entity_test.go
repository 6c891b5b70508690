package entity

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestKeyNormalizes(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"case", "Blok M", "blok m", true},
		{"whitespace", "  go to\tBlok   M ", "go to blok m", true},
		{"different", "Blok M", "Blok A", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.a) == Key(tt.b); got != tt.same {
				t.Errorf("Key(%q) == Key(%q) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
	if len(Key("x")) != 64 {
		t.Errorf("Key length = %d, want 64 hex chars", len(Key("x")))
	}
}

func TestTypeUnmarshal(t *testing.T) {
	var e Entity
	if err := json.Unmarshal([]byte(`{"type":"POI","value":"Monas","start":0,"end":5}`), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Type != POI {
		t.Errorf("Type = %q, want poi", e.Type)
	}
	if err := json.Unmarshal([]byte(`{"type":"restaurant","value":"x"}`), &e); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestTypeIsPlace(t *testing.T) {
	for _, typ := range Types {
		want := typ == Station || typ == POI || typ == Terminal
		if typ.IsPlace() != want {
			t.Errorf("%s.IsPlace() = %v", typ, !want)
		}
	}
}

func TestFirstAndValues(t *testing.T) {
	entities := []Entity{
		{Type: TransportType, Value: "MRT"},
		{Type: POI, Value: "Grand Indonesia"},
		{Type: Facility, Value: "elevator"},
		{Type: Facility, Value: "toilet"},
	}
	first, ok := First(entities, Type.IsPlace)
	if !ok || first.Value != "Grand Indonesia" {
		t.Errorf("First = %v, %v", first, ok)
	}
	if got := Values(entities, Facility); !reflect.DeepEqual(got, []string{"elevator", "toilet"}) {
		t.Errorf("Values = %v", got)
	}
	if _, ok := First(nil, Type.IsPlace); ok {
		t.Error("First on empty list should miss")
	}
}

func TestMatchPatterns(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Entity
	}{
		{
			name: "station and transport",
			text: "Go to Blok M via MRT",
			want: []Entity{
				{Type: Station, Value: "Blok M", Start: 6, End: 12},
				{Type: TransportType, Value: "MRT", Start: 17, End: 20},
			},
		},
		{
			name: "case insensitive keeps written form",
			text: "where is the nearest ELEVATOR at dukuh atas",
			want: []Entity{
				{Type: Station, Value: "dukuh atas", Start: 33, End: 43},
				{Type: Facility, Value: "ELEVATOR", Start: 21, End: 29},
			},
		},
		{
			name: "terminal route obstacle",
			text: "Is there a pothole on the way to Kalideres on koridor 3?",
			want: []Entity{
				{Type: Terminal, Value: "Kalideres", Start: 33, End: 42},
				{Type: Route, Value: "koridor 3", Start: 46, End: 55},
				{Type: Obstacle, Value: "pothole", Start: 11, End: 18},
			},
		},
		{
			name: "rune offsets",
			text: "Café near Monas",
			want: []Entity{
				{Type: POI, Value: "Monas", Start: 10, End: 15},
			},
		},
		{
			name: "word boundaries",
			text: "the bushes by the exits",
			want: []Entity{},
		},
		{
			name: "nothing",
			text: "hello there",
			want: []Entity{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchPatterns(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MatchPatterns(%q)\n got %v\nwant %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAnchor(t *testing.T) {
	tests := []struct {
		text, value string
		want        Entity
		ok          bool
	}{
		{"take me to grand indonesia", "Grand Indonesia", Entity{Value: "grand indonesia", Start: 11, End: 26}, true},
		{"Café Monas", "monas", Entity{Value: "Monas", Start: 5, End: 10}, true},
		{"ke  blok\tm sekarang", "Blok M", Entity{Value: "blok\tm", Start: 4, End: 10}, true},
		{"Blok M", "Senayan", Entity{}, false},
		{"Blok M", "  ", Entity{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := anchor(tt.text, tt.value)
			if ok != tt.ok || got != tt.want {
				t.Errorf("anchor(%q, %q) = %v, %v; want %v, %v", tt.text, tt.value, got, ok, tt.want, tt.ok)
			}
		})
	}
}
