package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// Deepgram is a Service backed by Deepgram live transcription.
type Deepgram struct {
	apiKey string
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram service.
func NewDeepgram(apiKey string, logger *slog.Logger) (*Deepgram, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deepgram{apiKey: apiKey, logger: logger.With("component", "speech.deepgram")}, nil
}

// Open connects a live transcription websocket.
func (d *Deepgram) Open(ctx context.Context, cfg Config) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &interfaces.LiveTranscriptionOptions{
		Language:       cfg.Language,
		Encoding:       "linear16",
		SampleRate:     cfg.SampleRate,
		Channels:       1,
		InterimResults: cfg.InterimResults,
		Model:          cfg.Model,
		SmartFormat:    true,
		Keywords:       keywords(cfg.Phrases, cfg.Boost),
	}
	if cfg.Endpointing > 0 {
		opts.Endpointing = strconv.FormatInt(cfg.Endpointing.Milliseconds(), 10)
	}

	s := &deepgramStream{
		results: make(chan Result, 64),
		done:    make(chan struct{}),
		logger:  d.logger,
	}

	client, err := listen.NewWebSocketUsingCallback(ctx, d.apiKey, &interfaces.ClientOptions{EnableKeepAlive: true}, opts, &deepgramCallback{stream: s})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if !client.Connect() {
		return nil, ErrConnectFailed
	}
	s.client = client

	d.logger.Info("transcription stream opened", "language", cfg.Language, "sample_rate", cfg.SampleRate, "model", cfg.Model)
	return s, nil
}

// keywords formats phrases as Deepgram "word:intensifier" boosts.
func keywords(phrases []string, boost float64) []string {
	if boost <= 0 {
		boost = 1
	}
	weight := strconv.FormatFloat(boost, 'f', -1, 64)
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p+":"+weight)
		}
	}
	return out
}

// deepgramStream exposes SDK callbacks as a result channel.
type deepgramStream struct {
	client  *listen.WSCallback
	results chan Result
	done    chan struct{}
	logger  *slog.Logger

	sendMu sync.RWMutex // held for reading while delivering results
	mu     sync.Mutex
	err    error
	once   sync.Once
}

func (s *deepgramStream) Send(pcm []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if err := s.client.Stream(bytes.NewReader(pcm)); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("speech: stream audio: %w", err)
	}
	return nil
}

func (s *deepgramStream) Results() <-chan Result { return s.results }

func (s *deepgramStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *deepgramStream) Close() error {
	s.finish(nil)
	s.client.Stop()
	return nil
}

// finish records err and closes the result channel once.
func (s *deepgramStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		close(s.done)
		s.sendMu.Lock()
		close(s.results)
		s.sendMu.Unlock()
	})
}

func (s *deepgramStream) deliver(r Result) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	select {
	case <-s.done:
	case s.results <- r:
	}
}

// deepgramCallback implements msginterfaces.LiveMessageCallback.
type deepgramCallback struct {
	stream *deepgramStream
}

func (c *deepgramCallback) Open(*msginterfaces.OpenResponse) error {
	c.stream.logger.Debug("deepgram socket opened")
	return nil
}

func (c *deepgramCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}
	c.stream.deliver(Result{Text: text, IsFinal: mr.IsFinal, Confidence: alt.Confidence})
	return nil
}

func (c *deepgramCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.stream.logger.Debug("deepgram metadata", "request_id", md.RequestID)
	return nil
}

func (c *deepgramCallback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *deepgramCallback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *deepgramCallback) Close(*msginterfaces.CloseResponse) error {
	c.stream.logger.Debug("deepgram socket closed")
	c.stream.finish(nil)
	return nil
}

func (c *deepgramCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.stream.logger.Warn("deepgram error", "type", er.Type, "message", er.ErrMsg)
	c.stream.finish(fmt.Errorf("speech: deepgram %s: %s", er.Type, er.ErrMsg))
	return nil
}

func (c *deepgramCallback) UnhandledEvent(data []byte) error {
	c.stream.logger.Debug("deepgram unhandled event", "bytes", len(data))
	return nil
}

var (
	_ Service                           = (*Deepgram)(nil)
	_ Stream                            = (*deepgramStream)(nil)
	_ msginterfaces.LiveMessageCallback = (*deepgramCallback)(nil)
)
