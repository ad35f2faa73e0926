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

	"github.com/rs/zerolog"

	"posbackoffice/backend/internal/cache"
	"posbackoffice/backend/internal/config"
	"posbackoffice/backend/internal/httpapi"
	"posbackoffice/backend/internal/refresh"
	"posbackoffice/backend/internal/service"
	"posbackoffice/backend/internal/store"
	"posbackoffice/backend/internal/store/memory"
	pgstore "posbackoffice/backend/internal/store/postgres"
)

func runServer(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set, refusing in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(startCtx); err != nil {
			_ = pg.Close()
			return err
		}
		repo = pg
		log.Info().Str("repository", "postgres").Msg("repository ready")
	} else {
		repo = memory.NewSeeded()
		log.Warn().Str("repository", "memory").Msg("DATABASE_URL not set, data is lost on restart")
	}

	var reports cache.ReportCache = cache.NewMemoryReportCache()
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process report cache")
			_ = redisCache.Close()
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Str("cache", "redis").Msg("report cache ready")
		}
	}

	svc := service.New(repo, reports, service.Options{
		DefaultStoreID:   cfg.StoreID,
		StoreName:        cfg.StoreName,
		ReturnWindowDays: cfg.ReturnWindowDays,
		BNPLTermDays:     cfg.BNPLTermDays,
		ReportCacheTTL:   cfg.ReportCacheTTL(),
	}, log)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	refreshDone := make(chan struct{})
	if interval := cfg.ReportRefreshInterval(); interval > 0 {
		go func() {
			defer close(refreshDone)
			refresh.New(svc, interval, log).Run(ctx)
		}()
	} else {
		close(refreshDone)
		log.Info().Msg("report refresh disabled")
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("back office listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	<-refreshDone

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close")
		}
	}

	log.Info().Msg("server stopped")
	return runErr
}

func migrate(ctx context.Context, databaseURL string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pg, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()
	return pg.Migrate(ctx)
}
