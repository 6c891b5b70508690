package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-mantra/pkg/detection"
	"github.com/teslashibe/go-mantra/pkg/intent"
)

func TestModeRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeWelcome, ModeDirection, ModeSurroundings, ModeService} {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		var back Mode
		if err := json.Unmarshal(data, &back); err != nil || back != m {
			t.Errorf("%v round-trip = %v, %v", m, back, err)
		}
	}
	if _, err := ParseMode("map"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		in   intent.Type
		want Mode
		ok   bool
	}{
		{intent.AskingForDirection, ModeDirection, true},
		{intent.AnalyzingSurroundings, ModeSurroundings, true},
		{intent.ServiceRecommendation, ModeService, true},
		{intent.Unknown, 0, false},
	}
	for _, tt := range tests {
		got, ok := ModeFor(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ModeFor(%v) = %v, %v", tt.in, got, ok)
		}
	}
}

func TestEventJSONShapes(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "partial",
			ev:   Event{Type: EventPartial, Timestamp: at, Partial: &Partial{Transcript: "take me"}},
			want: `{"type":"partial","timestamp":"2024-05-01T08:00:00Z","transcript":"take me","is_final":false}`,
		},
		{
			name: "empty detections",
			ev:   NewDetectionsEvent(nil, at),
			want: `{"type":"detections","timestamp":"2024-05-01T08:00:00Z","detections":[]}`,
		},
		{
			name: "detections",
			ev: NewDetectionsEvent([]detection.Detection{{
				Box: detection.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, Label: "halte", Confidence: 0.5,
				Proximity: "unknown", Source: detection.SourceCustom,
			}}, at),
			want: `{"type":"detections","timestamp":"2024-05-01T08:00:00Z","detections":[{"box":[1,2,3,4],"label":"halte","confidence":0.5,"distance":null,"proximity":"unknown","source":"custom"}]}`,
		},
		{
			name: "error",
			ev:   NewErrorEvent("audio", errors.New("stream closed"), at),
			want: `{"type":"error","timestamp":"2024-05-01T08:00:00Z","path":"audio","message":"stream closed"}`,
		},
		{
			name: "state",
			ev:   Event{Type: EventState, SessionID: "s1", Timestamp: at, State: &State{Mode: ModeService}},
			want: `{"type":"state","session_id":"s1","timestamp":"2024-05-01T08:00:00Z","mode":"service","destination":null,"is_listening":false}`,
		},
		{
			name: "no payload",
			ev:   Event{Type: EventState, Timestamp: at},
			want: `{"type":"state","timestamp":"2024-05-01T08:00:00Z"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got  %s\nwant %s", data, tt.want)
			}
		})
	}
}

func TestChannelSink(t *testing.T) {
	s := NewChannelSink(1)
	ctx := context.Background()

	if err := s.Emit(ctx, Event{Type: EventPartial}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	full, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := s.Emit(full, Event{Type: EventPartial}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Emit on full sink = %v, want deadline exceeded", err)
	}

	if ev := <-s.Events(); ev.Type != EventPartial {
		t.Errorf("received %v", ev.Type)
	}

	s.Close()
	s.Close()
	if err := s.Emit(ctx, Event{}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Emit after Close = %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}
}

func TestMultiSink(t *testing.T) {
	var got []EventType
	ok := FuncSink(func(ctx context.Context, ev Event) error {
		got = append(got, ev.Type)
		return nil
	})
	boom := errors.New("boom")
	failing := FuncSink(func(ctx context.Context, ev Event) error { return boom })

	err := MultiSink{ok, failing, ok}.Emit(context.Background(), Event{Type: EventState})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("delivered to %d sinks, want 2", len(got))
	}
}
