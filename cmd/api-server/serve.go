package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"procurement/db"
	"procurement/db/migrations"
	"procurement/internal/config"
	"procurement/internal/extraction"
	"procurement/internal/handlers"
	"procurement/internal/logging"
	"procurement/internal/mail"
	"procurement/internal/poller"
	"procurement/internal/ranking"
	"procurement/internal/rfp"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the mailbox poller",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbConn, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("cannot connect to DB: %w", err)
	}
	defer dbConn.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Run(dbConn.DB); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	completer, err := extraction.NewOpenAICompleter(cfg.LLM)
	if err != nil {
		return err
	}
	extractor := extraction.New(completer, log, extraction.WithRetry(cfg.LLM.MaxRetries, cfg.LLM.RetryDelay))

	sender, err := mail.NewSender(cfg.SMTP, log)
	if err != nil {
		return err
	}

	store := db.NewStorage(dbConn)
	service := rfp.NewService(store, extractor, sender, cfg.SMTP, cfg.Dispatch, log)

	var scores ranking.ScoreWriter
	if cfg.Ranking.PersistScores {
		scores = service
	}
	engine := ranking.NewEngine(service, extractor, scores, log)

	h := handlers.NewHandler(service, engine, cfg.Server.MaxBodyBytes, log)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handlers.NewRouter(h, promhttp.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var background stopper
	if cfg.IMAP.Enabled {
		mailPoller := poller.New(mail.NewIMAPDialer(cfg.IMAP, log), service, cfg.IMAP, log)
		if err := mailPoller.Start(); err != nil {
			return err
		}
		background = mailPoller
	} else {
		log.Info("imap polling disabled")
	}

	log.Info("starting server", zap.String("addr", cfg.Server.Addr), zap.String("version", version))
	return serveUntilDone(ctx, srv, background, cfg.Server.ShutdownTimeout, log)
}

type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type stopper interface {
	Stop(ctx context.Context) error
}

// serveUntilDone держит HTTP до отмены ctx или падения сервера. При любом
// выходе сначала останавливается background (опрос ящика), затем HTTP.
// background == nil: фоновых задач нет.
func serveUntilDone(ctx context.Context, srv server, background stopper, timeout time.Duration, log *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
			log.Error("http server failed, shutting down", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var shutdownErr error
	if background != nil {
		shutdownErr = errors.Join(shutdownErr, background.Stop(shutdownCtx))
	}
	shutdownErr = errors.Join(shutdownErr, srv.Shutdown(shutdownCtx))
	if shutdownErr != nil {
		log.Error("unclean shutdown", zap.Error(shutdownErr))
	}
	return errors.Join(runErr, shutdownErr)
}
