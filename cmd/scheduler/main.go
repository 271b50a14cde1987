package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"news-publisher/internal/app"
	"news-publisher/internal/infra/config"
	applog "news-publisher/internal/infra/log"
	"news-publisher/internal/infra/metrics"
)

const promoteBatch = 100

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	application, err := app.New(ctx, cfg, app.Options{}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать сервисы")
	}
	defer application.Close()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	logger.Info().Msg("scheduler: запущен")
	for {
		n, err := application.Newsroom.PromoteDue(ctx, promoteBatch)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка перевода запланированных материалов")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("scheduler: материалы поставлены в очередь")
		}
		if released, err := application.Scheduler.ReleaseStale(ctx, cfg.Publish.StaleAfter); err != nil {
			logger.Error().Err(err).Msg("scheduler: не удалось вернуть зависшие задачи")
		} else if released > 0 {
			logger.Warn().Int("count", released).Msg("scheduler: зависшие задачи возвращены в очередь")
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-ticker.C:
		}
	}
}
