package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"news-publisher/internal/adapters/httpapi"
	"news-publisher/internal/app"
	"news-publisher/internal/infra/config"
	httpinfra "news-publisher/internal/infra/http"
	applog "news-publisher/internal/infra/log"
	"news-publisher/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.Options{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось собрать сервисы")
	}
	defer application.Close()

	server := httpinfra.NewServer(logger)
	server.Router.Group(func(protected chi.Router) {
		protected.Use(httpinfra.TokenAuthMiddleware(cfg.APIToken))
		httpapi.NewHandler(application.Newsroom, logger).Register(protected)
	})
	if cfg.APIToken == "" {
		logger.Warn().Msg("api: API_TOKEN не задан, авторизация отключена")
	}

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
