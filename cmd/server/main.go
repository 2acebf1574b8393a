package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/reflector-lobby/internal/config"
	"github.com/DoyleJ11/reflector-lobby/internal/httpapi"
	"github.com/DoyleJ11/reflector-lobby/internal/hub"
	"github.com/DoyleJ11/reflector-lobby/internal/journal"
	"github.com/DoyleJ11/reflector-lobby/internal/lobby"
	"github.com/DoyleJ11/reflector-lobby/internal/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	os.Exit(finish(log, run(cfg, log)))
}

// finish logs how run ended and flushes the logger before the process exits.
func finish(log *zap.Logger, err error) int {
	code := 0
	if err != nil {
		log.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = log.Sync()
	return code
}

func run(cfg config.Config, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var sink lobby.OutcomeSink
	if cfg.DatabaseURL != "" {
		store, openErr := journal.OpenPostgres(cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, store.Close()) }()

		w := journal.NewWriter(store, cfg.JournalBuffer, log.Named("journal"))
		g.Go(func() error { return w.Run(ctx) })
		sink = w
	} else {
		log.Info("LOBBY_DATABASE_URL not set; challenge outcomes are not journaled")
	}

	h := hub.NewHub(ctx, hub.Options{
		InboxSize:      cfg.InboxSize,
		LedgerCapacity: cfg.LedgerCapacity,
		SignalBuffer:   cfg.SignalBuffer,
		Sink:           sink,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		h.Inbox() <- hub.ShutdownHub{}
		return err
	})

	return g.Wait()
}
