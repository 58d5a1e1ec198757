package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/bootstrap"
	"github.com/soulbot/soulbot/backend/internal/config"
	"github.com/soulbot/soulbot/backend/internal/handler"
	"github.com/soulbot/soulbot/backend/internal/handler/room"
	speechhandler "github.com/soulbot/soulbot/backend/internal/handler/speech"
	"github.com/soulbot/soulbot/backend/internal/handler/transcript"
	"github.com/soulbot/soulbot/backend/internal/logging"
	"github.com/soulbot/soulbot/backend/internal/service/export"
	"github.com/soulbot/soulbot/backend/internal/service/session"
	"github.com/soulbot/soulbot/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env.local wins because godotenv never overrides a variable that is already set.
	var envErrs []error
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil {
			envErrs = append(envErrs, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to configure logging")
	}
	defer logCloser.Close()

	if len(envErrs) == 2 {
		logger.Debug("no .env file found, using process environment only")
	}

	inference, err := bootstrap.Inference(ctx, cfg.Inference, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize inference")
	}

	profiles, releaseProfiles := bootstrap.Profiles(ctx, cfg.Profile, logger)
	defer releaseProfiles()

	sender := bootstrap.Sender(cfg.Mail, logger)
	persister := export.NewWriter(cfg.Session.TranscriptDir)
	opts := bootstrap.SessionOptions(cfg)

	speechSvc := speech.NewService(cfg.Speech, logger)
	if speechSvc.Enabled() {
		logger.Info("speech service enabled")
	} else {
		logger.Info("speech credentials not configured, voice disabled")
	}

	registry := session.NewRegistry()
	newSession := func(id string, transport session.Transport) (*session.Coordinator, error) {
		return session.New(id, session.Deps{
			Transport: transport,
			Inference: inference,
			Profiles:  profiles,
			Delivery:  sender,
			Persister: persister,
			Logger:    logger,
		}, opts)
	}

	router := handler.NewRouter(
		logger,
		room.New(registry, newSession, speechSvc, logger),
		transcript.New(registry, logger),
		speechhandler.New(speechSvc, logger),
	)

	startServer(ctx, cfg.Server, router, registry, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, registry *session.Registry, logger logrus.FieldLogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("Soul-Bot backend listening")
	if err := runServer(ctx, srv, registry.ShutdownAll); err != nil {
		logger.WithError(err).Fatal("server error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := registry.Drain(drainCtx); err != nil {
		logger.WithField("sessions", registry.Len()).Warn("sessions still open at exit")
	}
}

// runServer serves until ctx ends. beforeShutdown runs first so websocket sessions,
// which the HTTP server no longer tracks once hijacked, can persist and close.
func runServer(ctx context.Context, srv *http.Server, beforeShutdown func()) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if beforeShutdown != nil {
			beforeShutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
