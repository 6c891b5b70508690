package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-mantra/pkg/conversation"
	"github.com/teslashibe/go-mantra/pkg/session"
)

const emitTimeout = 2 * time.Second

// Health is the /api/health response.
type Health struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Monitors int    `json:"monitors"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(Health{
		Status:   "ok",
		Sessions: s.registry.Len(),
		Monitors: s.monitor.ClientCount(),
	})
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.registry.List())
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess, err := s.registry.Create(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess.Info())
}

func (s *Server) lookup(c *fiber.Ctx) (*session.Session, error) {
	sess, ok := s.registry.Get(c.Params("id"))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, session.ErrNotFound.Error())
	}
	return sess, nil
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Info())
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	err := s.registry.Stop(c.Params("id"))
	if errors.Is(err, session.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ModeRequest is the body of POST /api/sessions/:id/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(c *fiber.Ctx) error {
	sess, err := s.lookup(c)
	if err != nil {
		return err
	}
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	mode, err := conversation.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), emitTimeout)
	defer cancel()
	// The state changes even when no client drains the session's events.
	if err := sess.Conversation().SetMode(ctx, mode); err != nil {
		s.logger.Debug("mode event not delivered", "session_id", sess.ID(), "error", err)
	}
	return c.JSON(sess.Conversation().State())
}
