package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-mantra/pkg/audioio"
	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/response"
	"github.com/teslashibe/go-mantra/pkg/speech"
	"github.com/teslashibe/go-mantra/pkg/video"
)

// ErrNotFound is returned for an unknown session ID.
var ErrNotFound = errors.New("session: not found")

// Deps are the collaborators shared by every session. The classifier and
// the extractor (with its rate limiter and cache) are process-wide; each
// session gets its own renderer, sources and conversation state.
type Deps struct {
	Speech       speech.Service
	SpeechConfig speech.Config
	Classifier   conversation.Classifier
	Extractor    conversation.Extractor
	Detector     Detector // nil disables the video path

	// EventBuffer is the per-session event channel size. Default: 64.
	EventBuffer int

	// Sink, when set, also receives every session's events.
	Sink conversation.Sink

	Logger *slog.Logger
}

// Session is a running coordinator fed by pushed audio and video.
type Session struct {
	*Coordinator
	Audio     *audioio.PushSource
	Video     *video.PushSource // nil without a detector
	Events    *conversation.ChannelSink
	CreatedAt time.Time
}

// Info summarizes a session for listing.
type Info struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	State     conversation.State `json:"state"`
	Stats     Stats              `json:"stats"`
}

// Info returns the session summary.
func (s *Session) Info() Info {
	return Info{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt,
		State:     s.Conversation().State(),
		Stats:     s.Stats(),
	}
}

// Registry creates and tracks sessions.
type Registry struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = 64
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{
		deps:     deps,
		logger:   deps.Logger.With("component", "session.registry"),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session fed by push sources. The session keeps
// running after ctx ends; stop it with Stop.
func (r *Registry) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()

	acfg := audioio.DefaultConfig()
	acfg.Backend = audioio.BackendPush
	acfg.SampleRate = r.deps.SpeechConfig.SampleRate
	acfg.FrameDuration = r.deps.SpeechConfig.FrameDuration
	audio, err := audioio.NewPushSource(acfg, r.deps.Logger)
	if err != nil {
		return nil, err
	}

	events := conversation.NewChannelSink(r.deps.EventBuffer)
	var sink conversation.Sink = events
	if r.deps.Sink != nil {
		sink = conversation.MultiSink{events, r.deps.Sink}
	}

	cfg := Config{
		ID:           id,
		Speech:       r.deps.Speech,
		SpeechConfig: r.deps.SpeechConfig,
		Audio:        audio,
		Classifier:   r.deps.Classifier,
		Extractor:    r.deps.Extractor,
		Renderer:     response.New(),
		Sink:         sink,
		Logger:       r.deps.Logger,
	}
	var frames *video.PushSource
	if r.deps.Detector != nil {
		frames = video.NewPushSource()
		cfg.Video = frames
		cfg.Detector = r.deps.Detector
		cfg.Gate = video.NewFrameGate(r.deps.Logger)
	}

	coord, err := NewCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	// Sessions outlive the request that created them.
	if err := coord.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}

	s := &Session{
		Coordinator: coord,
		Audio:       audio,
		Video:       frames,
		Events:      events,
		CreatedAt:   time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", id, "active", n)
	return s, nil
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns all sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	infos := make([]Info, len(list))
	for i, s := range list {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop stops and removes a session.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	err := s.Stop()
	s.Events.Close()
	r.logger.Info("session stopped", "session_id", id)
	return err
}

// StopAll stops every session.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := r.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
