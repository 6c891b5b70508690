// MANTRA server - transit assistant for visually impaired commuters.
// Serves the session API and websockets for browser clients.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-mantra/internal/app"
	"github.com/teslashibe/go-mantra/internal/config"
	"github.com/teslashibe/go-mantra/internal/log"
	"github.com/teslashibe/go-mantra/pkg/hub"
	"github.com/teslashibe/go-mantra/pkg/session"
	"github.com/teslashibe/go-mantra/pkg/web"
)

func main() {
	envFile := flag.String("env", ".env", "Environment file to load")
	static := flag.String("static", "", "Directory served at / (optional)")
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
	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := app.New(cfg, logger)
	if err := a.Init(ctx); err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	monitor := hub.New("monitor", logger)
	deps := a.Deps()
	deps.Sink = web.NewMonitorSink(monitor)
	registry := session.NewRegistry(deps)

	srv := web.NewServer(web.Config{
		Addr:      ":" + cfg.Port,
		StaticDir: *static,
		Logger:    logger,
	}, registry, monitor)

	if err := srv.Start(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}
