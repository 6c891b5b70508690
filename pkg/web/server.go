// Package web is the presentation layer: a REST API for sessions, a session
// websocket carrying microphone audio and camera frames in and events out,
// and a monitor websocket mirroring every session's events.
package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	monitorws "github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-mantra/pkg/hub"
	"github.com/teslashibe/go-mantra/pkg/session"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// StaticDir is served at / when set.
	StaticDir string

	Logger *slog.Logger
}

// Server serves the API and websockets.
type Server struct {
	app      *fiber.App
	cfg      Config
	registry *session.Registry
	monitor  *hub.Hub
	logger   *slog.Logger
}

// NewServer creates a server over registry. monitor receives every session
// event when the registry was built with a MonitorSink on it; it may be nil.
func NewServer(cfg Config, registry *session.Registry, monitor *hub.Hub) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if monitor == nil {
		monitor = hub.New("monitor", cfg.Logger)
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		monitor:  monitor,
		logger:   cfg.Logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "MANTRA",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Delete("/sessions/:id", s.handleStopSession)
	api.Post("/sessions/:id/mode", s.handleSetMode)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session", websocket.New(s.handleSessionWS))
	app.Get("/ws/monitor", monitorws.New(func(c *monitorws.Conn) {
		hub.NewClient(s.monitor, c).Run()
	}))

	s.app = app
	return s
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the monitor hub and serves until ctx is done or Listen fails.
// On ctx cancellation the server shuts down and every session is stopped.
func (s *Server) Start(ctx context.Context) error {
	go s.monitor.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		s.registry.StopAll()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	err := s.app.Shutdown()
	if serr := s.registry.StopAll(); serr != nil {
		err = errors.Join(err, serr)
	}
	<-errc
	return err
}

// handleError renders errors as {"error": message}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
