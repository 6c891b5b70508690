package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/session"
)

// ErrVideoDisabled is returned for frames sent to a session without a
// detector.
var ErrVideoDisabled = errors.New("web: video disabled")

// Control message types on the session socket.
const (
	ControlFrame  = "frame"
	ControlListen = "listen"
	ControlMode   = "mode"
)

// ControlMessage is a text message from the session client.
type ControlMessage struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`    // frame: data URL
	Enabled *bool  `json:"enabled,omitempty"` // listen
	Mode    string `json:"mode,omitempty"`    // mode
}

// handleSessionWS runs one session for the lifetime of the socket. Binary
// messages are PCM16 mono audio at the "rate" query parameter; text
// messages are ControlMessages. Every session event is written back as JSON.
func (s *Server) handleSessionWS(c *websocket.Conn) {
	rate, err := parseRate(c.Query("rate"))
	if err != nil {
		c.WriteJSON(conversation.NewErrorEvent("control", err, time.Now()))
		return
	}

	sess, err := s.registry.Create(context.Background())
	if err != nil {
		s.logger.Error("create session failed", "error", err)
		c.WriteJSON(conversation.NewErrorEvent("session", err, time.Now()))
		return
	}
	id := sess.ID()
	logger := s.logger.With("session_id", id)
	defer func() {
		if err := s.registry.Stop(id); err != nil && !errors.Is(err, session.ErrNotFound) {
			logger.Warn("stop session failed", "error", err)
		}
	}()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		c.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return c.WriteJSON(v)
	}

	go func() {
		for {
			select {
			case ev := <-sess.Events.Events():
				if err := write(ev); err != nil {
					logger.Debug("write event failed", "error", err)
					c.Close()
					return
				}
			case <-sess.Events.Done():
				return
			}
		}
	}()

	logger.Info("session socket opened", "rate", rate)
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			logger.Info("session socket closed", "reason", err)
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if !sess.Conversation().State().IsListening {
				continue
			}
			if err := sess.Audio.Push(data, rate); err != nil {
				logger.Debug("push audio failed", "error", err)
			}
		case websocket.TextMessage:
			if err := applyControl(context.Background(), sess, data); err != nil {
				ev := conversation.NewErrorEvent("control", err, time.Now())
				ev.SessionID = id
				if werr := write(ev); werr != nil {
					return
				}
			}
		}
	}
}

// parseRate parses the client's audio sample rate. Empty means the
// recognition rate.
func parseRate(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 8000 || n > 192000 {
		return 0, fmt.Errorf("web: invalid sample rate %q", v)
	}
	return n, nil
}

// applyControl executes one control message against sess.
func applyControl(ctx context.Context, sess *session.Session, data []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("web: invalid control message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	switch msg.Type {
	case ControlFrame:
		if sess.Video == nil {
			return ErrVideoDisabled
		}
		return sess.Video.PushDataURL(msg.Data)
	case ControlListen:
		if msg.Enabled == nil {
			return errors.New("web: listen requires enabled")
		}
		if *msg.Enabled {
			return sess.Conversation().StartListening(ctx)
		}
		return sess.Conversation().StopListening(ctx)
	case ControlMode:
		mode, err := conversation.ParseMode(msg.Mode)
		if err != nil {
			return err
		}
		return sess.Conversation().SetMode(ctx, mode)
	default:
		return fmt.Errorf("web: unknown control message %q", msg.Type)
	}
}
