package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayusman/handstream/internal/app"
	"github.com/ayusman/handstream/internal/config"
	"github.com/ayusman/handstream/internal/logger"
	"github.com/ayusman/handstream/internal/metrics"
	"github.com/ayusman/handstream/internal/server"
	"github.com/ayusman/handstream/internal/session"
)

func main() {
	// A missing .env is fine; the environment and defaults still apply.
	_ = config.Load()
	cfg := config.FromEnv()

	flag.StringVar(&cfg.Host, "host", cfg.Host, "interface to bind")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	flag.Parse()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig := app.DefaultConfig()
	a := app.New(appConfig, app.DetectorFactory(appConfig.Detector, log))

	srv := server.New(server.Config{
		App:     a,
		Session: session.DefaultConfig(),
		Logger:  log,
		Metrics: metrics.New(),
	})

	addr := cfg.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to bind", slog.String("addr", addr), slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("hand tracking server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("endpoint", "/ws/hand-tracking"),
	)

	if err := srv.Serve(ctx, ln); err != nil {
		log.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped")
}
