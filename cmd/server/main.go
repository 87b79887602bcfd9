package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pointdeck/pointdeck/internal/config"
	"github.com/pointdeck/pointdeck/internal/httpapi"
	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/ws"
)

func main() {
	_ = godotenv.Load() // optional .env for local runs

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := buildLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One hub per process; the HTTP handlers and the socket layer share it.
	h := hub.NewHub(ctx, hub.Options{
		CodeAttempts:  cfg.CodeAttempts,
		Retention:     cfg.SessionRetention,
		SweepInterval: cfg.SweepInterval,
		KeepTopic:     cfg.KeepTopicOnNewRound,
	}, clockwork.NewRealClock(), logger)

	handler := httpapi.SetupRoutes(h, ws.Options{
		MaxFrameBytes:  cfg.MaxFrameBytes,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
