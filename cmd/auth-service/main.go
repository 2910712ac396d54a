package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pribylovaa/go-cohort-auth/internal/config"
	"github.com/pribylovaa/go-cohort-auth/internal/service"
	"github.com/pribylovaa/go-cohort-auth/internal/storage"
	"github.com/pribylovaa/go-cohort-auth/internal/storage/mongo"
	redisstore "github.com/pribylovaa/go-cohort-auth/internal/storage/redis"
	transport "github.com/pribylovaa/go-cohort-auth/internal/transport/http"
	"github.com/pribylovaa/go-cohort-auth/internal/transport/http/handlers"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env, "store", cfg.Store.Backend)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	// Подключения к хранилищам c таймаутом.
	// MongoDB обязателен всегда: это система записи по пользователям.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	mng, err := mongo.New(dbCtx, cfg.Mongo.URL)
	dbCancel()
	if err != nil {
		log.Error("mongo_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info("mongo_connected")

	// Сессии живут либо там же в Mongo, либо в Redis.
	var sessions storage.Storage = mng
	var rd *redisstore.Redis
	if cfg.Store.Backend == config.StoreRedis {
		rdCtx, rdCancel := context.WithTimeout(rootCtx, 10*time.Second)
		rd, err = redisstore.New(rdCtx, cfg.Redis.URL, cfg.Redis.KeyPrefix)
		rdCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			_ = mng.Close(context.Background())
			os.Exit(1)
		}
		log.Info("redis_connected")
		sessions = rd
	}

	// Сервис.
	srvc := service.New(sessions, mng, cfg.Auth)
	log.Info("service_initialized")

	var ready atomic.Bool

	router := transport.NewRouter(
		handlers.New(srvc, cfg.Auth),
		transport.Options{
			Logger:  log,
			Timeout: cfg.Timeouts.Service,
			Ready:   ready.Load,
		},
	)

	addr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	ready.Store(false)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	} else {
		log.Info("http_stopped")
	}

	// Явная очистка перед выходом.
	shutdownCancel()
	rootCancel()
	if rd != nil {
		_ = rd.Close(context.Background())
	}
	_ = mng.Close(context.Background())

	log.Info("service_stopped")
	os.Exit(0)
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
