// Assistant daemon - captures microphone audio, listens for trigger
// phrases and serves the overlay over HTTP/WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meetscout/platform/internal/audio"
	"github.com/meetscout/platform/internal/config"
	"github.com/meetscout/platform/internal/pipeline"
	"github.com/meetscout/platform/internal/recognizer"
	"github.com/meetscout/platform/internal/research"
	"github.com/meetscout/platform/internal/server"
	"github.com/meetscout/platform/internal/session"
	"github.com/meetscout/platform/internal/sessionlog"
	"github.com/meetscout/platform/internal/trigger"
	"github.com/meetscout/platform/internal/utterance"
	"github.com/meetscout/platform/internal/vad"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	// Session log store (optional)
	var store *sessionlog.Store
	if cfg.Store.Path != "" {
		store, err = sessionlog.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("failed to open session log", "path", cfg.Store.Path, "error", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()
	}

	// Capture into the frame queue
	queue := audio.NewFrameQueue(cfg.Audio.QueueSize)
	capturer, err := audio.NewCapturer(queue, cfg.Audio.SampleRate, cfg.Audio.FrameSamples(), cfg.Audio.Device)
	if err != nil {
		slog.Error("failed to initialize audio", "error", err)
		os.Exit(1)
	}
	defer capturer.Stop()

	// External providers
	rec := recognizer.NewHTTPClient(recognizer.HTTPConfig{
		Endpoint:   cfg.Recognizer.Endpoint,
		APIKey:     cfg.Recognizer.APIKey,
		Model:      cfg.Recognizer.Model,
		Language:   cfg.Recognizer.Language,
		Timeout:    cfg.Recognizer.Timeout(),
		MaxRetries: cfg.Recognizer.MaxRetries,
	})
	provider := research.NewOpenAIProvider(research.OpenAIConfig{
		Endpoint:    cfg.Research.Endpoint,
		APIKey:      cfg.Research.APIKey,
		Model:       cfg.Research.Model,
		MaxTokens:   cfg.Research.MaxTokens,
		Temperature: cfg.Research.Temperature,
		Timeout:     cfg.Research.Timeout(),
	})
	engine := research.NewEngine(provider, cfg.Research.Timeout(), cfg.Research.MeetingContext)

	// Processing pipeline
	p := pipeline.New(pipeline.Options{
		Queue:      queue,
		Detector:   vad.NewDetector(cfg.VAD.EnergyThreshold, cfg.VAD.OnsetFrames, cfg.VAD.HangoverFrames),
		Assembler:  utterance.NewAssembler(cfg.Audio.PreRollFrames, cfg.Utterance.SilenceTimeout(), cfg.Utterance.MaxDuration()),
		Recognizer: rec,
		Triggers: trigger.NewDetector(
			cfg.Triggers.AllResearch(),
			cfg.Triggers.NoteStart,
			cfg.Triggers.Stop,
		),
		Engine:        engine,
		Machine:       session.NewMachine(cfg.Session.TopicGrace(), cfg.Note.MaxDuration(), cfg.Note.AutoStopSilence()),
		Store:         store,
		MinConfidence: cfg.Recognizer.MinConfidence,
		OverlayTTL:    cfg.Overlay.DismissAfter(),
	})

	srv := server.New(p, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := p.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("pipeline error", "error", err)
		}
	}()

	if err := capturer.Start(ctx); err != nil {
		slog.Error("failed to start capture", "error", err)
		os.Exit(1)
	}

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("assistant started", "http", addr, "device", cfg.Audio.Device)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal or a fatal capture failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutting down...")
	case err := <-capturer.Errors():
		slog.Error("audio capture failed", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	capturer.Stop()
	slog.Info("shutdown complete")
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
