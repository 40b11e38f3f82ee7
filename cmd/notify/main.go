package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/tourbook/internal/notify"
	"github.com/diagnosis/tourbook/internal/platform/mailer"
	"github.com/diagnosis/tourbook/pkg/config"
	"github.com/diagnosis/tourbook/pkg/events"
	"github.com/diagnosis/tourbook/pkg/logger"
	mw "github.com/diagnosis/tourbook/pkg/middleware"
)

func main() {
	cfg := config.Load()

	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "tourbook-notify")
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := notify.New(mailer.New(cfg.Email), cfg.Server.BaseURL).Subscribe(ctx, bus); err != nil {
		logger.Error("Failed to subscribe", "error", err)
		os.Exit(1)
	}

	// health and metrics only
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("notify"))
	r.Use(mw.Health)
	r.Use(mw.Metrics)

	port := cfg.Server.NotifyPort
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting notify service", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down notify service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Notify service shutdown error", "error", err)
		}
		return bus.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Error("Notify service error", "error", err)
		os.Exit(1)
	}
}
