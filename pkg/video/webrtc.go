package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

// ErrNoProducer indicates the signalling server lists no matching camera.
var ErrNoProducer = errors.New("video: camera producer not found")

// WebRTCConfig configures a WebRTCSource.
type WebRTCConfig struct {
	// SignallingURL is the GStreamer webrtcsink signalling endpoint,
	// e.g. ws://camera.local:8443.
	SignallingURL string

	// Producer is the producer meta name to pick. Empty picks the first.
	Producer string

	// DecodeInterval is the minimum time between decoded frames.
	DecodeInterval time.Duration

	// ConnectTimeout bounds signalling and waiting for the video track.
	ConnectTimeout time.Duration

	// Decoder converts H264 to JPEG. Default: NewFastDecoder(DecodeInterval).
	Decoder Decoder

	Logger *slog.Logger
}

// DefaultWebRTCConfig returns a config for url decoding 10 frames per second.
func DefaultWebRTCConfig(url string) WebRTCConfig {
	return WebRTCConfig{
		SignallingURL:  url,
		DecodeInterval: 100 * time.Millisecond,
		ConnectTimeout: 15 * time.Second,
	}
}

// WebRTCSource receives a camera's H264 track over WebRTC using GStreamer
// signalling and yields decoded JPEG frames.
type WebRTCSource struct {
	cfg    WebRTCConfig
	logger *slog.Logger
	box    *latest

	ws      *websocket.Conn
	wsMu    sync.Mutex
	pc      *webrtc.PeerConnection
	trackCh chan struct{}

	mu        sync.Mutex
	peerID    string
	producer  string
	sessionID string

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// signalMsg is the union of GStreamer signalling messages this client
// handles.
type signalMsg struct {
	Type      string         `json:"type"`
	PeerID    string         `json:"peerId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Producers []producerInfo `json:"producers,omitempty"`
	SDP       *sdpMsg        `json:"sdp,omitempty"`
	ICE       *iceMsg        `json:"ice,omitempty"`
}

type producerInfo struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpMsg struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceMsg struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// NewWebRTCSource creates an unconnected source.
func NewWebRTCSource(cfg WebRTCConfig) (*WebRTCSource, error) {
	if cfg.SignallingURL == "" {
		return nil, errors.New("video: signalling URL required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	if cfg.Decoder == nil {
		cfg.Decoder = NewFastDecoder(cfg.DecodeInterval)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebRTCSource{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "video.webrtc"),
		box:     newLatest(),
		trackCh: make(chan struct{}, 1),
	}, nil
}

// Connect performs signalling and waits for the video track.
func (s *WebRTCSource) Connect(ctx context.Context) error {
	connectCtx, cancelConnect := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancelConnect()

	ws, _, err := websocket.DefaultDialer.DialContext(connectCtx, s.cfg.SignallingURL, nil)
	if err != nil {
		return fmt.Errorf("video: signalling connect: %w", err)
	}
	s.ws = ws

	if deadline, ok := connectCtx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}
	if err := s.awaitWelcome(); err != nil {
		ws.Close()
		return fmt.Errorf("video: welcome: %w", err)
	}
	if err := s.findProducer(); err != nil {
		ws.Close()
		return err
	}
	ws.SetReadDeadline(time.Time{})

	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.newPeerConnection(); err != nil {
		s.cancel()
		ws.Close()
		return fmt.Errorf("video: peer connection: %w", err)
	}

	if err := s.send(map[string]string{"type": "startSession", "peerId": s.producerID()}); err != nil {
		s.Close()
		return fmt.Errorf("video: start session: %w", err)
	}

	s.wg.Add(1)
	go s.signalling(s.ctx)

	select {
	case <-s.trackCh:
		s.logger.Info("camera track connected", "producer", s.producerID())
		return nil
	case <-connectCtx.Done():
		s.Close()
		return fmt.Errorf("video: waiting for track: %w", connectCtx.Err())
	}
}

func (s *WebRTCSource) read() (signalMsg, error) {
	var msg signalMsg
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode signalling message: %w", err)
	}
	return msg, nil
}

func (s *WebRTCSource) send(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *WebRTCSource) awaitWelcome() error {
	msg, err := s.read()
	if err != nil {
		return err
	}
	if msg.Type != "welcome" {
		return fmt.Errorf("expected welcome, got %q", msg.Type)
	}
	s.mu.Lock()
	s.peerID = msg.PeerID
	s.mu.Unlock()
	return nil
}

func (s *WebRTCSource) findProducer() error {
	if err := s.send(map[string]string{"type": "list"}); err != nil {
		return fmt.Errorf("video: list producers: %w", err)
	}
	msg, err := s.read()
	if err != nil {
		return fmt.Errorf("video: list producers: %w", err)
	}
	id := pickProducer(msg.Producers, s.cfg.Producer)
	if id == "" {
		return fmt.Errorf("%w: %q among %d producers", ErrNoProducer, s.cfg.Producer, len(msg.Producers))
	}
	s.mu.Lock()
	s.producer = id
	s.mu.Unlock()
	return nil
}

func pickProducer(producers []producerInfo, name string) string {
	for _, p := range producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID
		}
	}
	return ""
}

func (s *WebRTCSource) producerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.producer
}

func (s *WebRTCSource) newPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Debug("track received", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		select {
		case s.trackCh <- struct{}{}:
		default:
		}
		s.wg.Add(1)
		go s.readTrack(track)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			s.sendICE(c)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("peer connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.box.close()
		}
	})

	s.pc = pc
	return nil
}

func (s *WebRTCSource) signalling(ctx context.Context) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		msg, err := s.read()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("signalling read failed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			s.mu.Lock()
			s.sessionID = msg.SessionID
			s.mu.Unlock()
		case "peer":
			if err := s.handlePeer(msg); err != nil {
				s.logger.Warn("peer message failed", "error", err)
			}
		case "endSession":
			s.logger.Info("camera ended session")
			s.box.close()
			return
		}
	}
}

func (s *WebRTCSource) handlePeer(msg signalMsg) error {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return s.send(map[string]any{
			"type":      "peer",
			"sessionId": s.session(),
			"sdp":       sdpMsg{Type: answer.Type.String(), SDP: answer.SDP},
		})
	}
	if msg.ICE != nil {
		return s.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
	}
	return nil
}

func (s *WebRTCSource) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *WebRTCSource) sendICE(c *webrtc.ICECandidate) {
	sid := s.session()
	if sid == "" {
		return
	}
	init := c.ToJSON()
	err := s.send(map[string]any{
		"type":      "peer",
		"sessionId": sid,
		"ice":       iceMsg{Candidate: init.Candidate, SDPMid: init.SDPMid, SDPMLineIndex: init.SDPMLineIndex},
	})
	if err != nil {
		s.logger.Debug("send ICE candidate failed", "error", err)
	}
}

// readTrack depacketizes H264 and decodes once per access unit.
func (s *WebRTCSource) readTrack(track *webrtc.TrackRemote) {
	defer s.wg.Done()
	var (
		depack codecs.H264Packet
		au     []byte
	)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		au = s.appendPacket(&depack, au, pkt)
		if !pkt.Marker {
			continue
		}
		frame, err := s.cfg.Decoder.Decode(s.ctx, au)
		au = au[:0]
		if err != nil {
			s.logger.Warn("h264 decode failed", "error", err)
			continue
		}
		if frame != nil {
			if s.box.put(frame) != nil {
				return
			}
		}
	}
}

func (s *WebRTCSource) appendPacket(depack *codecs.H264Packet, au []byte, pkt *rtp.Packet) []byte {
	nal, err := depack.Unmarshal(pkt.Payload)
	if err != nil {
		s.logger.Debug("rtp depacketize failed", "seq", pkt.SequenceNumber, "error", err)
		return au
	}
	return append(au, nal...)
}

// Frames returns decoded JPEG frames.
func (s *WebRTCSource) Frames() <-chan []byte { return s.box.ch }

// Stats returns frame counters.
func (s *WebRTCSource) Stats() Stats { return s.box.stats() }

// Close tears down the peer connection and signalling socket.
func (s *WebRTCSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		var errs []error
		if s.pc != nil {
			errs = append(errs, s.pc.Close())
		}
		if s.ws != nil {
			errs = append(errs, s.ws.Close())
		}
		s.wg.Wait()
		s.box.close()
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

var _ Source = (*WebRTCSource)(nil)
