package detection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/teslashibe/go-mantra/internal/log"
)

type fakeDetector struct {
	source Source
	raw    []Raw
	err    error
	calls  atomic.Int32
	closed bool
}

func (f *fakeDetector) Infer(ctx context.Context, frame []byte) ([]Raw, error) {
	f.calls.Add(1)
	return f.raw, f.err
}

func (f *fakeDetector) Source() Source { return f.source }

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = log.Discard()
	return cfg
}

func TestEngineSuppressesAcrossDetectors(t *testing.T) {
	standard := &fakeDetector{source: SourceStandard, raw: []Raw{
		{Box: Box{100, 100, 200, 300}, Label: "bus", Confidence: 0.4},
		{Box: Box{400, 100, 450, 300}, Label: "person", Confidence: 0.8},
	}}
	custom := &fakeDetector{source: SourceCustom, raw: []Raw{
		{Box: Box{102, 101, 201, 299}, Label: "transjakarta_bus", Confidence: 0.9},
	}}

	e := NewEngine(testConfig(), standard, custom)
	got := e.Detect(context.Background(), []byte("jpeg"))

	if len(got) != 2 {
		t.Fatalf("Detect returned %d detections, want 2: %+v", len(got), got)
	}
	if got[0].Label != "transjakarta_bus" || got[0].Confidence != 0.9 || got[0].Source != SourceCustom {
		t.Errorf("first = %+v, want the 0.9 custom detection", got[0])
	}
	if got[1].Label != "person" || got[1].Source != SourceStandard {
		t.Errorf("second = %+v", got[1])
	}

	stats := e.Stats()
	if stats.Frames != 1 || stats.Raw != 3 || stats.Kept != 2 || stats.Suppressed != 1 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestEngineConfidenceThreshold(t *testing.T) {
	d := &fakeDetector{source: SourceStandard, raw: []Raw{
		{Box: Box{0, 0, 10, 10}, Label: "cup", Confidence: 0.24},
		{Box: Box{50, 50, 60, 60}, Label: "cup", Confidence: 0.25},
	}}
	got := NewEngine(testConfig(), d).Detect(context.Background(), []byte("x"))
	if len(got) != 1 || got[0].Confidence != 0.25 {
		t.Errorf("Detect = %+v, want only the 0.25 detection", got)
	}
}

func TestEngineDetectorFailure(t *testing.T) {
	broken := &fakeDetector{source: SourceCustom, err: ErrUndecodable}
	working := &fakeDetector{source: SourceStandard, raw: []Raw{
		{Box: Box{0, 0, 10, 10}, Label: "chair", Confidence: 0.7},
	}}

	e := NewEngine(testConfig(), broken, working)
	got := e.Detect(context.Background(), []byte("x"))
	if len(got) != 1 || got[0].Label != "chair" {
		t.Errorf("Detect = %+v", got)
	}
	if e.Stats().Failures != 1 {
		t.Errorf("Failures = %d", e.Stats().Failures)
	}

	all := NewEngine(testConfig(), &fakeDetector{err: errors.New("boom")})
	if got := all.Detect(context.Background(), []byte("x")); got == nil || len(got) != 0 {
		t.Errorf("Detect with only failing detectors = %#v, want empty list", got)
	}
}

func TestEngineEmptyFrame(t *testing.T) {
	d := &fakeDetector{source: SourceStandard}
	got := NewEngine(testConfig(), d).Detect(context.Background(), nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Detect(nil) = %#v", got)
	}
	if d.calls.Load() != 0 {
		t.Error("detectors should not run on an empty frame")
	}
}

func TestEngineClose(t *testing.T) {
	a, b := &fakeDetector{}, &fakeDetector{}
	if err := NewEngine(testConfig(), a, b).Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Error("every detector should be closed")
	}
}

func TestSuppress(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 100, 100}, Label: "car", Confidence: 0.4},
		{Box: Box{1, 1, 100, 100}, Label: "transjakarta_bus", Confidence: 0.9},
	}
	got := Suppress(dets, 0.5)
	if len(got) != 1 || got[0].Confidence != 0.9 {
		t.Errorf("Suppress = %+v, want only the 0.9 detection", got)
	}
	if dets[0].Confidence != 0.4 {
		t.Error("Suppress must not reorder its input")
	}

	// IoU exactly at the threshold is kept.
	edge := []Detection{
		{Box: Box{0, 0, 10, 10}, Confidence: 0.9},
		{Box: Box{0, 0, 5, 10}, Confidence: 0.8},
	}
	if got := Suppress(edge, 0.5); len(got) != 2 {
		t.Errorf("IoU == threshold should be kept, got %d", len(got))
	}
}

func TestEstimateDistance(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		box     Box
		want    float64
		wantNil bool
	}{
		{"person uses height", "person", Box{0, 0, 1000, 600}, 1700.0 * 600 / 600 / 10, false},
		{"car uses width", "Car", Box{0, 0, 900, 10}, 4500.0 * 600 / 900 / 10, false},
		{"cup uses height", "cup", Box{0, 0, 5, 57}, 95.0 * 600 / 57 / 10, false},
		{"unknown label", "dog", Box{0, 0, 10, 10}, 0, true},
		{"zero size", "car", Box{10, 0, 10, 10}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateDistance(tt.label, tt.box, DefaultFocalLength, ReferenceSizes)
			if tt.wantNil {
				if got != nil {
					t.Errorf("EstimateDistance = %v, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("EstimateDistance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceMonotonicInHeight(t *testing.T) {
	prev := EstimateDistance("person", Box{0, 0, 50, 10}, DefaultFocalLength, ReferenceSizes)
	for h := 11; h < 600; h += 7 {
		d := EstimateDistance("person", Box{0, 0, 50, h}, DefaultFocalLength, ReferenceSizes)
		if !(*d < *prev) {
			t.Fatalf("height %d: distance %v not below %v", h, *d, *prev)
		}
		prev = d
	}
}

func TestProximity(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		d    *float64
		want string
	}{
		{nil, "unknown"},
		{f(10), "very close"},
		{f(50), "close"},
		{f(150), "nearby"},
		{f(399), "moderate"},
		{f(400), "far"},
	}
	for _, tt := range tests {
		if got := Proximity(tt.d); got != tt.want {
			t.Errorf("Proximity(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestYOLODetectorMissingModel(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cfg.ModelPath = "/nonexistent/yolov8n.onnx"
	if _, err := NewYOLO(cfg); err == nil {
		t.Error("expected error for missing model")
	}
}
