package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mngfx-livechart/internal/config"
	"mngfx-livechart/internal/logging"
	"mngfx-livechart/internal/publisher"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	noGenerator := flag.Bool("no-generator", false, "serve the feed without publishing random ticks")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := publisher.NewBroker(ctx, cfg.Publisher, log)
	if err != nil {
		log.Error("failed to create broker", zap.String("broker", cfg.Publisher.Broker), zap.Error(err))
		os.Exit(1)
	}
	defer broker.Close()

	if !*noGenerator {
		gen := publisher.NewGenerator(broker, cfg.Publisher.Symbols, cfg.Publisher.Interval, log)
		go func() { _ = gen.Run(ctx) }()
	}

	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	server := publisher.NewServer(broker, cfg.Publisher.Path, log)
	httpServer := &http.Server{
		Addr:              cfg.Publisher.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		server.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("market feed listening",
		zap.String("addr", cfg.Publisher.Listen),
		zap.String("path", cfg.Publisher.Path),
		zap.String("broker", cfg.Publisher.Broker),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("market feed terminated", zap.Error(err))
		os.Exit(1)
	}
}
