// MANTRA local - runs one assistant session against the local microphone
// and, optionally, a WebRTC camera. Events are written to the log.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/teslashibe/go-mantra/internal/app"
	"github.com/teslashibe/go-mantra/internal/config"
	"github.com/teslashibe/go-mantra/internal/log"
	"github.com/teslashibe/go-mantra/pkg/audioio"
	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/response"
	"github.com/teslashibe/go-mantra/pkg/session"
	"github.com/teslashibe/go-mantra/pkg/video"
)

func main() {
	envFile := flag.String("env", ".env", "Environment file to load")
	backend := flag.String("audio", string(audioio.BackendPortAudio), "Audio backend: portaudio, tone")
	camera := flag.String("camera", "", "Camera signalling URL (overrides MANTRA_CAMERA_SIGNALLING)")
	mode := flag.String("mode", "welcome", "Initial mode: welcome, direction, surroundings, service")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Init("info")
		log.L().Error("configuration error", "error", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *camera != "" {
		cfg.CameraSignallingURL = *camera
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := run(cfg, *backend, *mode); err != nil {
		logger.Error("mantra-local failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, backend, initialMode string) error {
	logger := log.L()

	b, err := audioio.ParseBackend(backend)
	if err != nil {
		return err
	}
	startMode, err := conversation.ParseMode(initialMode)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := app.New(cfg, logger)
	if err := a.Init(ctx); err != nil {
		return err
	}
	defer a.Shutdown()

	speechCfg := a.SpeechConfig()
	acfg := audioio.DefaultConfig()
	acfg.Backend = b
	acfg.SampleRate = speechCfg.SampleRate
	acfg.FrameDuration = speechCfg.FrameDuration
	mic, err := audioio.NewSource(acfg, logger)
	if err != nil {
		return err
	}
	defer mic.Close()

	scfg := session.Config{
		ID:           uuid.NewString(),
		Speech:       a.Speech,
		SpeechConfig: speechCfg,
		Audio:        mic,
		Classifier:   a.Classifier,
		Extractor:    a.Extractor,
		Renderer:     response.New(),
		Sink:         conversation.FuncSink(logEvent),
		Logger:       logger,
	}

	if cfg.CameraSignallingURL != "" && a.Detector != nil {
		vcfg := video.DefaultWebRTCConfig(cfg.CameraSignallingURL)
		vcfg.Producer = cfg.CameraProducer
		vcfg.Logger = logger
		cam, err := video.NewWebRTCSource(vcfg)
		if err != nil {
			return err
		}
		if err := cam.Connect(ctx); err != nil {
			logger.Warn("camera unavailable; continuing without video", "error", err)
		} else {
			defer cam.Close()
			scfg.Video = cam
			scfg.Detector = a.Detector
			scfg.Gate = video.NewFrameGate(logger)
		}
	}

	coord, err := session.NewCoordinator(scfg)
	if err != nil {
		return err
	}
	if err := coord.Start(ctx); err != nil {
		return err
	}
	if startMode != conversation.ModeWelcome {
		if err := coord.Conversation().SetMode(ctx, startMode); err != nil {
			logger.Warn("set initial mode failed", "error", err)
		}
	}

	logger.Info("listening; press Ctrl+C to exit", "session_id", coord.ID(), "video", scfg.Video != nil)
	<-ctx.Done()

	if err := coord.Stop(); err != nil {
		logger.Warn("stop session failed", "error", err)
	}
	st := coord.Stats()
	logger.Info("session ended",
		"audio_frames", st.AudioFrames,
		"finals", st.Finals,
		"video_frames", st.VideoFrames,
		"detected_frames", st.DetectedFrames,
	)
	return nil
}

// logEvent writes one session event to the log.
func logEvent(_ context.Context, ev conversation.Event) error {
	logger := log.L()
	switch ev.Type {
	case conversation.EventPartial:
		logger.Debug("partial", "text", ev.Partial.Transcript)
	case conversation.EventUtterance:
		u := ev.Utterance
		logger.Info("utterance", "transcript", u.Transcript, "intent", u.Intent.Type, "mode", u.Mode, "response", u.AgentResponse)
	case conversation.EventDetections:
		logger.Info("detections", "count", len(ev.Detections.Detections))
		for _, d := range ev.Detections.Detections {
			logger.Debug("detection", "label", d.Label, "confidence", d.Confidence, "proximity", d.Proximity)
		}
	case conversation.EventState:
		logger.Info("state", "mode", ev.State.Mode, "listening", ev.State.IsListening)
	case conversation.EventError:
		logger.Warn("pipeline error", "path", ev.Error.Path, "message", ev.Error.Message)
	}
	return nil
}
