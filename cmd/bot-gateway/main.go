package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"news-publisher/internal/adapters/bot"
	"news-publisher/internal/adapters/telegram"
	"news-publisher/internal/app"
	"news-publisher/internal/infra/config"
	httpinfra "news-publisher/internal/infra/http"
	applog "news-publisher/internal/infra/log"
	"news-publisher/internal/infra/metrics"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "bot-gateway")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	if cfg.Telegram.EditorChatID == 0 {
		logger.Fatal().Msg("bot: не указан чат редакции (TG_EDITOR_CHAT_ID)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось создать бота")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := telegram.NewNotifier(botAPI, cfg.Telegram.EditorChatID)
	application, err := app.New(ctx, cfg, app.Options{Notifier: notifier}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot: не удалось собрать сервисы")
	}
	defer application.Close()

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot: некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Error().Err(err).Msg("bot: не удалось зарегистрировать вебхук")
		}
	}

	h := bot.NewHandler(botAPI, logger, application.Newsroom, cfg.Telegram.EditorChatID)

	server := httpinfra.NewServer(logger)
	server.Router.With(httpinfra.WebhookSecretMiddleware(cfg.Telegram.WebhookSecret)).
		Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("bot: HTTP сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("bot: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
