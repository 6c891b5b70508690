package response

import (
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/teslashibe/go-mantra/pkg/entity"
	"github.com/teslashibe/go-mantra/pkg/intent"
)

func TestRender(t *testing.T) {
	g := New(WithRand(rand.New(rand.NewPCG(1, 2))))

	tests := []struct {
		name     string
		intent   intent.Type
		entities []entity.Entity
		contains []string
		exact    string
	}{
		{
			name:     "direction",
			intent:   intent.AskingForDirection,
			entities: []entity.Entity{{Type: entity.TransportType, Value: "MRT"}, {Type: entity.POI, Value: "Grand Indonesia"}},
			contains: []string{"Grand Indonesia"},
		},
		{
			name:     "direction to terminal",
			intent:   intent.AskingForDirection,
			entities: []entity.Entity{{Type: entity.Terminal, Value: "Kalideres"}},
			contains: []string{"Kalideres"},
		},
		{
			name:     "direction without destination",
			intent:   intent.AskingForDirection,
			entities: []entity.Entity{{Type: entity.TransportType, Value: "bus"}},
			exact:    AskDestination,
		},
		{
			name:     "surroundings with facilities",
			intent:   intent.AnalyzingSurroundings,
			entities: []entity.Entity{{Type: entity.Facility, Value: "elevator"}, {Type: entity.Facility, Value: "exit"}},
			contains: []string{" I'll pay special attention to the elevator, exit you mentioned."},
		},
		{
			name:     "service with transport types",
			intent:   intent.ServiceRecommendation,
			entities: []entity.Entity{{Type: entity.TransportType, Value: "KRL"}},
			contains: []string{" I'll focus on KRL services."},
		},
		{
			name:   "unknown",
			intent: intent.Unknown,
			exact:  UnknownIntent,
		},
		{
			name:   "unrecognised label",
			intent: intent.Type("small_talk"),
			exact:  UnknownIntent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Render(tt.intent, tt.entities)
			if tt.exact != "" && got != tt.exact {
				t.Errorf("Render = %q, want %q", got, tt.exact)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Render = %q, want it to contain %q", got, want)
				}
			}
			if strings.Contains(got, "{") {
				t.Errorf("unfilled slot in %q", got)
			}
		})
	}
}

func TestRenderSuffixOnlyWhenMentioned(t *testing.T) {
	g := New()
	for range 20 {
		got := g.Render(intent.AnalyzingSurroundings, nil)
		if !slices.Contains(templates[intent.AnalyzingSurroundings], got) {
			t.Fatalf("Render = %q, want a bare template", got)
		}
	}
}

func TestRenderCoversAllTemplates(t *testing.T) {
	g := New(WithRand(rand.New(rand.NewPCG(7, 7))))
	seen := make(map[string]bool)
	for range 200 {
		seen[g.Render(intent.ServiceRecommendation, nil)] = true
	}
	if len(seen) != len(templates[intent.ServiceRecommendation]) {
		t.Errorf("saw %d distinct replies, want %d", len(seen), len(templates[intent.ServiceRecommendation]))
	}
}

func TestRenderConcurrent(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				g.Render(intent.AskingForDirection, []entity.Entity{{Type: entity.Station, Value: "Blok M"}})
			}
		}()
	}
	wg.Wait()
}
