package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-mantra/internal/log"
	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/speech"
)

func newTestRegistry(detector Detector, extra conversation.Sink) (*Registry, *speech.Mock) {
	svc := speech.NewMock()
	return NewRegistry(Deps{
		Speech:       svc,
		SpeechConfig: speech.DefaultConfig(),
		Classifier:   &gatedClassifier{gate: make(chan struct{})},
		Extractor:    patternExtractor{},
		Detector:     detector,
		Sink:         extra,
		Logger:       log.Discard(),
	}), svc
}

func TestRegistry_Lifecycle(t *testing.T) {
	r, svc := newTestRegistry(&fakeDetector{}, nil)
	defer r.StopAll()

	ctx, cancel := context.WithCancel(context.Background())
	a, err := r.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// The session outlives the creating context.
	cancel()

	b, err := r.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatal("duplicate session IDs")
	}
	if a.Video == nil || a.Audio == nil {
		t.Fatal("push sources not wired")
	}
	if len(svc.Streams()) != 2 {
		t.Errorf("streams opened = %d, want 2", len(svc.Streams()))
	}

	if got, ok := r.Get(a.ID()); !ok || got != a {
		t.Error("Get() did not return the created session")
	}
	list := r.List()
	if len(list) != 2 || r.Len() != 2 {
		t.Fatalf("List() len = %d, Len() = %d", len(list), r.Len())
	}
	if list[0].State.Mode != conversation.ModeWelcome || !list[0].State.IsListening {
		t.Errorf("info state = %+v", list[0].State)
	}

	select {
	case <-a.Done():
		t.Fatal("session stopped when creating context was cancelled")
	case <-time.After(20 * time.Millisecond):
	}

	if err := r.Stop(a.ID()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, ok := r.Get(a.ID()); ok {
		t.Error("stopped session still registered")
	}
	if err := r.Stop(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Stop() error = %v, want ErrNotFound", err)
	}
	select {
	case <-a.Events.Done():
	default:
		t.Error("event sink not closed on Stop")
	}

	if err := r.StopAll(); err != nil {
		t.Errorf("StopAll() error = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after StopAll = %d", r.Len())
	}
}

func TestRegistry_NoDetectorNoVideo(t *testing.T) {
	r, _ := newTestRegistry(nil, nil)
	defer r.StopAll()

	s, err := r.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Video != nil {
		t.Error("video source created without a detector")
	}
}

func TestRegistry_SharedSink(t *testing.T) {
	shared := conversation.NewChannelSink(16)
	r, svc := newTestRegistry(nil, shared)
	defer r.StopAll()

	s, err := r.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	svc.Last().Push(speech.Result{Text: "halo"})

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-shared.Events():
			if ev.Type == conversation.EventPartial {
				if ev.SessionID != s.ID() {
					t.Errorf("session_id = %q, want %q", ev.SessionID, s.ID())
				}
				return
			}
		case <-timeout:
			t.Fatal("shared sink received no partial")
		}
	}
}
