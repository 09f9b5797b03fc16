package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentchain/approval"
	"agentchain/auth"
	"agentchain/cadre"
	"agentchain/db"
	"agentchain/directory"
	"agentchain/hierarchy"
	"agentchain/outbox"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer pool.Close()

	catalog := cadre.DefaultCatalog()
	fees := cadre.DefaultFeeSchedule(catalog)

	directoryService := directory.NewService(directory.NewRepository(pool))
	hierarchyRepo := hierarchy.NewRepository(pool)
	outboxWriter := outbox.NewWriter()

	approvalService := approval.NewService(
		pool,
		approval.NewRepository(pool),
		directoryService,
		hierarchyRepo,
		outboxWriter,
		catalog,
		fees,
	)
	hierarchyService := hierarchy.NewService(pool, hierarchyRepo, directoryService, outboxWriter)

	relay := outbox.NewRelay(pool, nil, log).WithInterval(cfg.OutboxInterval)
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("outbox relay stopped")
		}
	}()

	server := &Server{
		approvalService:  approvalService,
		hierarchyService: hierarchyService,
		directoryService: directoryService,
		verifier:         auth.NewService(cfg.JWTSecret),
		log:              log,
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown http server")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server")
	}
}
