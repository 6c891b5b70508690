package detection

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Config holds fusion settings.
type Config struct {
	ConfidenceThresh float64            // drop raw detections below this
	IoUThresh        float64            // suppress overlaps above this
	FocalLength      float64            // pixels
	ReferenceSizes   map[string]float64 // millimetres by lower-case label
	Logger           *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ConfidenceThresh: 0.25,
		IoUThresh:        0.5,
		FocalLength:      DefaultFocalLength,
		ReferenceSizes:   ReferenceSizes,
		Logger:           slog.Default(),
	}
}

// Stats counts engine activity since creation.
type Stats struct {
	Frames     int64 `json:"frames"`
	Raw        int64 `json:"raw"`
	Kept       int64 `json:"kept"`
	Suppressed int64 `json:"suppressed"`
	Failures   int64 `json:"failures"`
}

// Engine runs every configured detector over a frame and fuses the results.
type Engine struct {
	detectors []Detector
	cfg       Config
	logger    *slog.Logger

	frames, raw, kept, suppressed, failures atomic.Int64
}

// NewEngine creates an engine over the given detectors, typically one
// standard and one custom.
func NewEngine(cfg Config, detectors ...Detector) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReferenceSizes == nil {
		cfg.ReferenceSizes = ReferenceSizes
	}
	if cfg.FocalLength <= 0 {
		cfg.FocalLength = DefaultFocalLength
	}
	return &Engine{
		detectors: detectors,
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "detection.engine"),
	}
}

// Detect returns the fused detections for frame, highest confidence first.
// It never fails: a detector error or an undecodable frame contributes
// nothing.
func (e *Engine) Detect(ctx context.Context, frame []byte) []Detection {
	e.frames.Add(1)
	if len(frame) == 0 {
		return []Detection{}
	}

	results := make([][]Raw, len(e.detectors))
	var wg sync.WaitGroup
	for i, d := range e.detectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := d.Infer(ctx, frame)
			if err != nil {
				e.failures.Add(1)
				e.logger.Debug("detector failed", "source", d.Source(), "error", err)
				return
			}
			results[i] = raw
		}()
	}
	wg.Wait()

	var combined []Detection
	for i, raw := range results {
		e.raw.Add(int64(len(raw)))
		combined = append(combined, e.annotate(raw, e.detectors[i].Source())...)
	}

	kept := Suppress(combined, e.cfg.IoUThresh)
	e.kept.Add(int64(len(kept)))
	e.suppressed.Add(int64(len(combined) - len(kept)))
	return kept
}

// annotate filters by confidence and estimates distances.
func (e *Engine) annotate(raw []Raw, src Source) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < e.cfg.ConfidenceThresh {
			continue
		}
		dist := EstimateDistance(r.Label, r.Box, e.cfg.FocalLength, e.cfg.ReferenceSizes)
		out = append(out, Detection{
			Box:        r.Box,
			Label:      r.Label,
			Confidence: r.Confidence,
			Distance:   dist,
			Proximity:  Proximity(dist),
			Source:     src,
		})
	}
	return out
}

// Suppress keeps detections in descending confidence order, dropping any
// whose IoU with an already kept detection exceeds thresh. Labels are not
// compared, so one object seen by both detectors collapses to the more
// confident box.
func Suppress(dets []Detection, thresh float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if IoU(d.Box, k.Box) > thresh {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:     e.frames.Load(),
		Raw:        e.raw.Load(),
		Kept:       e.kept.Load(),
		Suppressed: e.suppressed.Load(),
		Failures:   e.failures.Load(),
	}
}

// Close closes every detector.
func (e *Engine) Close() error {
	var firstErr error
	for _, d := range e.detectors {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
