// Package session runs live assistant sessions: it streams microphone audio
// through transcription into the conversation pipeline and, while the user
// is scanning their surroundings, camera frames through object detection.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-mantra/pkg/audioio"
	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/detection"
	"github.com/teslashibe/go-mantra/pkg/speech"
	"github.com/teslashibe/go-mantra/pkg/video"
)

const (
	PathAudio = "audio"
	PathVideo = "video"
)

var (
	// ErrStarted is returned when starting a coordinator twice.
	ErrStarted = errors.New("session: already started")

	// ErrStopped is returned when starting a stopped coordinator.
	ErrStopped = errors.New("session: stopped")
)

// Detector fuses detections for one frame. *detection.Engine implements it.
type Detector interface {
	Detect(ctx context.Context, frame []byte) []detection.Detection
}

// Config wires a Coordinator. Video and Detector are optional together.
type Config struct {
	ID           string
	Speech       speech.Service
	SpeechConfig speech.Config
	Audio        audioio.Source
	Video        video.Source
	Detector     Detector
	Gate         *video.FrameGate

	Classifier conversation.Classifier
	Extractor  conversation.Extractor
	Renderer   conversation.Renderer
	Sink       conversation.Sink

	// FinalQueue bounds final transcripts waiting for the pipeline.
	// Default: 16.
	FinalQueue int

	Logger *slog.Logger
	Now    func() time.Time
}

// Stats counts session activity.
type Stats struct {
	AudioFrames    int64 `json:"audio_frames"`
	Partials       int64 `json:"partials"`
	Finals         int64 `json:"finals"`
	VideoFrames    int64 `json:"video_frames"`
	SkippedFrames  int64 `json:"skipped_frames"`
	DetectedFrames int64 `json:"detected_frames"`
}

// Coordinator glues one session's audio path, video path and conversation
// state together. The two paths run independently; stopping the session
// halts both.
type Coordinator struct {
	cfg    Config
	conv   *conversation.Orchestrator
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	stream  speech.Stream
	done    chan struct{}
	wg      sync.WaitGroup

	audioFrames, partials, finals        atomic.Int64
	videoFrames, skipped, detectedFrames atomic.Int64
}

// NewCoordinator validates cfg and builds the conversation orchestrator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Speech == nil || cfg.Audio == nil {
		return nil, fmt.Errorf("%w: speech service and audio source required", conversation.ErrMissingDependency)
	}
	if (cfg.Video == nil) != (cfg.Detector == nil) {
		return nil, fmt.Errorf("%w: video source and detector go together", conversation.ErrMissingDependency)
	}
	if cfg.FinalQueue <= 0 {
		cfg.FinalQueue = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	conv, err := conversation.NewOrchestrator(conversation.Config{
		SessionID:  cfg.ID,
		Classifier: cfg.Classifier,
		Extractor:  cfg.Extractor,
		Renderer:   cfg.Renderer,
		Sink:       cfg.Sink,
		Logger:     cfg.Logger,
		Now:        cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		cfg:    cfg,
		conv:   conv,
		logger: cfg.Logger.With("component", "session.coordinator", "session_id", cfg.ID),
		done:   make(chan struct{}),
	}, nil
}

// ID returns the session ID.
func (c *Coordinator) ID() string { return c.cfg.ID }

// Conversation returns the session's orchestrator.
func (c *Coordinator) Conversation() *conversation.Orchestrator { return c.conv }

// Done is closed once Stop has halted both paths.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Stats returns activity counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		AudioFrames:    c.audioFrames.Load(),
		Partials:       c.partials.Load(),
		Finals:         c.finals.Load(),
		VideoFrames:    c.videoFrames.Load(),
		SkippedFrames:  c.skipped.Load(),
		DetectedFrames: c.detectedFrames.Load(),
	}
}

// Start opens the transcription stream and launches both paths. The session
// runs until Stop or until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case c.started:
		return ErrStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.cfg.Speech.Open(ctx, c.cfg.SpeechConfig)
	if err != nil {
		cancel()
		return fmt.Errorf("session: open transcription: %w", err)
	}
	if err := c.cfg.Audio.Start(ctx); err != nil {
		cancel()
		stream.Close()
		return fmt.Errorf("session: start audio: %w", err)
	}

	c.started = true
	c.cancel = cancel
	c.stream = stream

	finals := make(chan conversation.Transcript, c.cfg.FinalQueue)
	c.wg.Add(3)
	go c.pumpAudio(ctx, stream)
	go c.readResults(ctx, stream, finals)
	go c.runFinals(ctx, finals)
	if c.cfg.Video != nil {
		c.wg.Add(1)
		go c.runVideo(ctx)
	}

	if err := c.conv.StartListening(ctx); err != nil {
		c.logger.Debug("emit listening state failed", "error", err)
	}
	c.logger.Info("session started", "video", c.cfg.Video != nil)
	return nil
}

// pumpAudio forwards captured frames to the transcription stream.
func (c *Coordinator) pumpAudio(ctx context.Context, stream speech.Stream) {
	defer c.wg.Done()
	frames := c.cfg.Audio.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := stream.Send(frame); err != nil {
				if !errors.Is(err, speech.ErrClosed) {
					c.logger.Warn("send audio failed", "error", err)
				}
				return
			}
			c.audioFrames.Add(1)
		}
	}
}

// readResults delivers interim results immediately and queues finals so a
// slow pipeline never holds up partial transcripts.
func (c *Coordinator) readResults(ctx context.Context, stream speech.Stream, finals chan<- conversation.Transcript) {
	defer c.wg.Done()
	defer close(finals)

	for r := range stream.Results() {
		t := conversation.Transcript{Text: r.Text, IsFinal: r.IsFinal, Confidence: r.Confidence}
		if !r.IsFinal {
			c.partials.Add(1)
			if err := c.conv.HandleTranscript(ctx, t); err != nil && ctx.Err() == nil {
				c.logger.Debug("emit partial failed", "error", err)
			}
			continue
		}
		c.finals.Add(1)
		select {
		case finals <- t:
		case <-ctx.Done():
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	err := stream.Err()
	if err == nil {
		c.logger.Info("transcription stream ended")
		return
	}
	c.logger.Warn("transcription stream failed", "error", err)
	c.emit(ctx, conversation.NewErrorEvent(PathAudio, err, c.cfg.Now()))
	if err := c.conv.StopListening(ctx); err != nil {
		c.logger.Debug("emit listening state failed", "error", err)
	}
}

// runFinals processes finalized utterances one at a time, in order.
func (c *Coordinator) runFinals(ctx context.Context, finals <-chan conversation.Transcript) {
	defer c.wg.Done()
	for t := range finals {
		if ctx.Err() != nil {
			return
		}
		if err := c.conv.HandleTranscript(ctx, t); err != nil && ctx.Err() == nil {
			c.logger.Warn("emit utterance failed", "error", err)
		}
	}
}

// runVideo detects objects in the latest frame while the session is in
// surroundings mode. Frames arriving during a detection replace each other.
func (c *Coordinator) runVideo(ctx context.Context) {
	defer c.wg.Done()
	frames := c.cfg.Video.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.videoFrames.Add(1)
			if c.conv.State().Mode != conversation.ModeSurroundings {
				continue
			}
			if c.cfg.Gate != nil && !c.cfg.Gate.Allow(frame) {
				c.skipped.Add(1)
				continue
			}
			dets := c.cfg.Detector.Detect(ctx, frame)
			if ctx.Err() != nil {
				return
			}
			c.detectedFrames.Add(1)
			c.emit(ctx, conversation.NewDetectionsEvent(dets, c.cfg.Now()))
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, ev conversation.Event) {
	ev.SessionID = c.cfg.ID
	if err := c.cfg.Sink.Emit(ctx, ev); err != nil && ctx.Err() == nil {
		c.logger.Debug("emit event failed", "type", ev.Type, "error", err)
	}
}

// Stop halts both paths, closes the stream and sources, and waits for the
// session goroutines to exit. An in-flight pipeline call is cancelled.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.stopped = true
	started := c.started
	cancel, stream := c.cancel, c.stream
	c.mu.Unlock()

	var errs []error
	if started {
		cancel()
		errs = append(errs, stream.Close())
	}
	errs = append(errs, c.cfg.Audio.Close())
	if c.cfg.Video != nil {
		errs = append(errs, c.cfg.Video.Close())
	}
	c.wg.Wait()

	if started {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.conv.StopListening(ctx); err != nil {
			c.logger.Debug("emit listening state failed", "error", err)
		}
		cancel()
	}
	close(c.done)
	c.logger.Info("session stopped", "stats", c.Stats())
	return errors.Join(errs...)
}
