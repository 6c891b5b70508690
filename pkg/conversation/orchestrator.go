// Package conversation turns transcripts into intents, entities, spoken
// replies and UI mode changes, and defines the events sent to the
// presentation layer.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-mantra/pkg/entity"
	"github.com/teslashibe/go-mantra/pkg/intent"
	"github.com/teslashibe/go-mantra/pkg/response"
)

// Classifier predicts the intent of an utterance.
type Classifier interface {
	Predict(ctx context.Context, text string) (intent.Intent, error)
}

// Extractor finds entities in an utterance. It must not fail.
type Extractor interface {
	Extract(ctx context.Context, text string) []entity.Entity
}

// Renderer drafts the spoken reply.
type Renderer interface {
	Render(it intent.Type, entities []entity.Entity) string
}

// ErrMissingDependency is returned when a required collaborator is nil.
var ErrMissingDependency = errors.New("conversation: missing dependency")

// Config wires an Orchestrator.
type Config struct {
	SessionID  string
	Classifier Classifier
	Extractor  Extractor
	Renderer   Renderer // defaults to response.New()
	Sink       Sink
	Logger     *slog.Logger
	Now        func() time.Time
}

// Orchestrator owns the conversation state of one session.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	turn sync.Mutex // serializes final transcripts

	mu    sync.Mutex
	state State
}

// NewOrchestrator creates an orchestrator in ModeWelcome.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Classifier == nil || cfg.Extractor == nil || cfg.Sink == nil {
		return nil, ErrMissingDependency
	}
	if cfg.Renderer == nil {
		cfg.Renderer = response.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := cfg.Logger.With("component", "conversation.orchestrator")
	if cfg.SessionID != "" {
		logger = logger.With("session_id", cfg.SessionID)
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: logger,
		state:  State{Mode: ModeWelcome},
	}, nil
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot()
}

func (o *Orchestrator) snapshot() State {
	s := o.state
	if s.Destination != nil {
		d := *s.Destination
		s.Destination = &d
	}
	return s
}

// HandleTranscript processes one transcription result. Interim results only
// emit a partial event; final results run the full pipeline and may change
// the mode. Final results for the same session are processed one at a time.
// A result with no text after trimming carries nothing to answer and emits
// no event, final or not.
func (o *Orchestrator) HandleTranscript(ctx context.Context, t Transcript) error {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return nil
	}

	if !t.IsFinal {
		return o.emit(ctx, Event{
			Type:    EventPartial,
			Partial: &Partial{Transcript: text},
		})
	}

	o.turn.Lock()
	defer o.turn.Unlock()

	u := o.process(ctx, text)
	return o.emit(ctx, Event{Type: EventUtterance, Utterance: u})
}

// process classifies and extracts concurrently, renders the reply and applies
// the mode transition.
func (o *Orchestrator) process(ctx context.Context, text string) *Utterance {
	var (
		it       intent.Intent
		classErr error
		entities []entity.Entity
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		it, classErr = o.cfg.Classifier.Predict(ctx, text)
	}()
	go func() {
		defer wg.Done()
		entities = o.cfg.Extractor.Extract(ctx, text)
	}()
	wg.Wait()

	if entities == nil {
		entities = []entity.Entity{}
	}

	var reply string
	if classErr != nil {
		o.logger.Warn("intent classification failed", "error", classErr)
		it = intent.Intent{Type: intent.Unknown}
		reply = response.Fallback
	} else {
		reply = o.cfg.Renderer.Render(it.Type, entities)
		if reply == "" {
			reply = response.Fallback
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	var dest *string
	if next, ok := ModeFor(it.Type); ok && classErr == nil {
		switch next {
		case ModeDirection:
			if d, found := entity.First(entities, entity.Type.IsPlace); found {
				value := d.Value
				dest = &value
				o.state.Mode = ModeDirection
				o.state.Destination = &value
			}
		case ModeSurroundings, ModeService:
			o.state.Mode = next
			o.state.Destination = nil
		case ModeWelcome:
		}
	}

	o.logger.Info("utterance processed",
		"intent", it.Type,
		"confidence", it.Confidence,
		"entities", len(entities),
		"mode", o.state.Mode,
	)

	return &Utterance{
		Transcript:    text,
		IsFinal:       true,
		Intent:        it,
		Entities:      entities,
		AgentResponse: reply,
		Mode:          o.state.Mode,
		Destination:   dest,
	}
}

// StartListening marks the microphone as active.
func (o *Orchestrator) StartListening(ctx context.Context) error {
	return o.update(ctx, func(s *State) { s.IsListening = true })
}

// StopListening marks the microphone as inactive.
func (o *Orchestrator) StopListening(ctx context.Context) error {
	return o.update(ctx, func(s *State) { s.IsListening = false })
}

// SetMode switches mode directly, as from a UI control. Leaving direction
// mode clears the destination.
func (o *Orchestrator) SetMode(ctx context.Context, m Mode) error {
	return o.update(ctx, func(s *State) {
		s.Mode = m
		if m != ModeDirection {
			s.Destination = nil
		}
	})
}

// Reset returns to the initial state.
func (o *Orchestrator) Reset(ctx context.Context) error {
	return o.update(ctx, func(s *State) { *s = State{Mode: ModeWelcome} })
}

func (o *Orchestrator) update(ctx context.Context, fn func(*State)) error {
	o.mu.Lock()
	fn(&o.state)
	s := o.snapshot()
	o.mu.Unlock()
	return o.emit(ctx, Event{Type: EventState, State: &s})
}

func (o *Orchestrator) emit(ctx context.Context, ev Event) error {
	ev.SessionID = o.cfg.SessionID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.cfg.Now()
	}
	return o.cfg.Sink.Emit(ctx, ev)
}
