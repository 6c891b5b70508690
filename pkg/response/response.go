// Package response renders the assistant's spoken replies from an intent and
// the entities found in the utterance.
package response

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/teslashibe/go-mantra/pkg/entity"
	"github.com/teslashibe/go-mantra/pkg/intent"
)

// Fixed replies.
const (
	Fallback       = "I'm having trouble understanding that. Could you please try again?"
	AskDestination = "Could you please specify where you'd like to go?"
	UnknownIntent  = "I'm not sure how to help with that. Could you try asking in a different way?"
)

const destinationSlot = "{destination}"

var templates = map[intent.Type][]string{
	intent.AskingForDirection: {
		"I'll guide you to {destination}. The best route will be shown on the map.",
		"Let me help you get to {destination}. I'm calculating the best transit route for you.",
		"I'll show you how to reach {destination} using public transportation.",
	},
	intent.AnalyzingSurroundings: {
		"I'll scan the area around you to identify any obstacles or points of interest.",
		"Let me analyze your surroundings to help you navigate safely.",
		"I'll check the environment and highlight any important objects or facilities.",
	},
	intent.ServiceRecommendation: {
		"I'll find the best transit options and services available near you.",
		"Let me check which transportation services would work best for your needs.",
		"I'll recommend the most convenient transit options in this area.",
	},
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the source used to pick templates.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// Generator picks a template per intent uniformly at random and fills its
// slots from the entities. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Render returns the reply for it and entities. It always returns usable text.
func (g *Generator) Render(it intent.Type, entities []entity.Entity) string {
	choices, ok := templates[it]
	if !ok {
		return UnknownIntent
	}

	switch it {
	case intent.AskingForDirection:
		dest, ok := entity.First(entities, entity.Type.IsPlace)
		if !ok {
			return AskDestination
		}
		return strings.ReplaceAll(g.pick(choices), destinationSlot, dest.Value)

	case intent.AnalyzingSurroundings:
		reply := g.pick(choices)
		if facilities := entity.Values(entities, entity.Facility); len(facilities) > 0 {
			reply += fmt.Sprintf(" I'll pay special attention to the %s you mentioned.", strings.Join(facilities, ", "))
		}
		return reply

	case intent.ServiceRecommendation:
		reply := g.pick(choices)
		if modes := entity.Values(entities, entity.TransportType); len(modes) > 0 {
			reply += fmt.Sprintf(" I'll focus on %s services.", strings.Join(modes, ", "))
		}
		return reply
	}
	return Fallback
}

func (g *Generator) pick(choices []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return choices[g.rng.IntN(len(choices))]
}
