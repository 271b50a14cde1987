package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"news-publisher/internal/adapters/telegram"
	"news-publisher/internal/app"
	"news-publisher/internal/domain"
	"news-publisher/internal/infra/config"
	applog "news-publisher/internal/infra/log"
	"news-publisher/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "publisher")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	if len(cfg.Endpoints()) == 0 {
		logger.Fatal().Msg("publisher: не настроен ни один шлюз платформ (CHANNEL_*_URL)")
	}

	var notifier domain.EmergencyNotifier
	if cfg.Telegram.Token != "" && cfg.Telegram.EditorChatID != 0 {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("publisher: не удалось создать бота")
		}
		notifier = telegram.NewNotifier(botAPI, cfg.Telegram.EditorChatID)
	} else {
		logger.Warn().Msg("publisher: уведомления редакции отключены (TG_BOT_TOKEN, TG_EDITOR_CHAT_ID)")
	}

	application, err := app.New(ctx, cfg, app.Options{Notifier: notifier, WithChannels: true}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("publisher: не удалось собрать сервисы")
	}
	defer application.Close()

	for platform := range cfg.Endpoints() {
		logger.Info().Str("platform", string(platform)).Msg("publisher: шлюз подключён")
	}
	application.Worker(cfg).Run(ctx)
}
