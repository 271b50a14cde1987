// Package bot обслуживает вебхук Telegram-бота редакции.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/adapters/media"
	"news-publisher/internal/adapters/telegram"
	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
)

const queuePreview = 10

// Newsroom — операции редакции, доступные из бота.
type Newsroom interface {
	Content(ctx context.Context, id uuid.UUID) (domain.ContentItem, error)
	Approve(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, domain.EnqueueResult, error)
	Reject(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error)
	Retract(ctx context.Context, id uuid.UUID, actor string) (domain.ContentItem, error)
	MarkBreaking(ctx context.Context, id uuid.UUID, pushRequired bool, actor string) (domain.ContentItem, error)
	ListEmergencies(ctx context.Context, limit int) ([]domain.EmergencyQueueItem, error)
	PublishEmergency(ctx context.Context, id int64) (domain.EmergencyQueueItem, domain.EnqueueResult, error)
	CancelEmergency(ctx context.Context, id int64) (domain.EmergencyQueueItem, error)
	UpdateEmergencyPriority(ctx context.Context, id int64, priority int) (domain.EmergencyQueueItem, error)
	GetScheduleStats(ctx context.Context, platform string) (domain.ScheduleStats, error)
	ScheduleOverview(ctx context.Context) ([]domain.ScheduleStats, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot          telegram.Sender
	log          zerolog.Logger
	newsroom     Newsroom
	editorChatID int64
}

// NewHandler создаёт обработчик. Если editorChatID не задан, команды принимаются из любого чата.
func NewHandler(bot telegram.Sender, log zerolog.Logger, newsroom Newsroom, editorChatID int64) *Handler {
	return &Handler{
		bot:          bot,
		log:          log.With().Str("component", "editor_bot").Logger(),
		newsroom:     newsroom,
		editorChatID: editorChatID,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) allowed(chatID int64) bool {
	return h.editorChatID == 0 || chatID == h.editorChatID
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	if !h.allowed(chatID) {
		h.reply(chatID, "Нет доступа", nil)
		return
	}
	text := strings.TrimSpace(msg.Text)
	command, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	actor := actorOf(msg.From)

	switch command {
	case "/start", "/help":
		h.reply(chatID, h.buildHelpMessage(), nil)
	case "/queue":
		h.handleQueue(ctx, chatID)
	case "/stats":
		h.handleStats(ctx, chatID, arg)
	case "/approve":
		h.withContentID(chatID, arg, func(id uuid.UUID) {
			item, job, err := h.newsroom.Approve(ctx, id, actor)
			if err != nil {
				h.replyErr(chatID, err)
				return
			}
			h.reply(chatID, fmt.Sprintf("Одобрено: %s (версия %d), задача %d", item.Title, item.CurrentVersionNo, job.JobID), nil)
		})
	case "/reject":
		h.withContentID(chatID, arg, func(id uuid.UUID) {
			item, err := h.newsroom.Reject(ctx, id, actor)
			if err != nil {
				h.replyErr(chatID, err)
				return
			}
			h.reply(chatID, "Отклонено: "+item.Title, nil)
		})
	case "/retract":
		h.withContentID(chatID, arg, func(id uuid.UUID) {
			item, err := h.newsroom.Retract(ctx, id, actor)
			if err != nil {
				h.replyErr(chatID, err)
				return
			}
			h.reply(chatID, "Снято с публикации: "+item.Title, nil)
		})
	case "/breaking":
		h.withContentID(chatID, arg, func(id uuid.UUID) {
			item, err := h.newsroom.MarkBreaking(ctx, id, true, actor)
			if err != nil {
				h.replyErr(chatID, err)
				return
			}
			h.reply(chatID, "Отмечено срочным: "+item.Title, nil)
		})
	default:
		h.reply(chatID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) withContentID(chatID int64, arg string, fn func(uuid.UUID)) {
	id, err := uuid.Parse(arg)
	if err != nil {
		h.reply(chatID, "Укажите идентификатор материала: /команда <uuid>", nil)
		return
	}
	fn(id)
}

func (h *Handler) handleQueue(ctx context.Context, chatID int64) {
	items, err := h.newsroom.ListEmergencies(ctx, queuePreview)
	if err != nil {
		h.replyErr(chatID, err)
		return
	}
	if len(items) == 0 {
		h.reply(chatID, "Очередь срочных пуста", nil)
		return
	}
	for _, item := range items {
		content, err := h.newsroom.Content(ctx, item.ContentID)
		if err != nil {
			h.log.Warn().Err(err).Int64("emergency_id", item.ID).Msg("bot: материал кандидата не найден")
			content = domain.ContentItem{ID: item.ContentID, Title: item.ContentID.String()}
		}
		kb := telegram.EmergencyKeyboard(item.ID)
		h.reply(chatID, telegram.FormatEmergency(item, content), &kb)
	}
}

func (h *Handler) handleStats(ctx context.Context, chatID int64, platform string) {
	var stats []domain.ScheduleStats
	if platform != "" {
		one, err := h.newsroom.GetScheduleStats(ctx, platform)
		if err != nil {
			h.replyErr(chatID, err)
			return
		}
		stats = append(stats, one)
	} else {
		all, err := h.newsroom.ScheduleOverview(ctx)
		if err != nil {
			h.replyErr(chatID, err)
			return
		}
		stats = all
	}
	lines := make([]string, 0, len(stats))
	for _, s := range stats {
		lines = append(lines, formatStats(s))
	}
	h.reply(chatID, strings.Join(lines, "\n\n"), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	answer := ""
	switch {
	case !h.allowed(chatID):
		answer = "Нет доступа"
	case strings.HasPrefix(cb.Data, telegram.CallbackPublish):
		if id, ok := telegram.ParseCallbackID(cb.Data, telegram.CallbackPublish); ok {
			answer = h.publishEmergency(ctx, chatID, id)
		}
	case strings.HasPrefix(cb.Data, telegram.CallbackCancel):
		if id, ok := telegram.ParseCallbackID(cb.Data, telegram.CallbackCancel); ok {
			answer = h.cancelEmergency(ctx, chatID, id)
		}
	case strings.HasPrefix(cb.Data, telegram.CallbackBump):
		if id, ok := telegram.ParseCallbackID(cb.Data, telegram.CallbackBump); ok {
			answer = h.bumpEmergency(ctx, chatID, id)
		}
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, answer))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось ответить на callback")
	}
}

func (h *Handler) publishEmergency(ctx context.Context, chatID, id int64) string {
	item, job, err := h.newsroom.PublishEmergency(ctx, id)
	if err != nil {
		h.replyErr(chatID, err)
		return "Ошибка"
	}
	h.reply(chatID, fmt.Sprintf("Срочное #%d отправлено в публикацию, задача %d", item.ID, job.JobID), nil)
	return "Опубликовано"
}

func (h *Handler) cancelEmergency(ctx context.Context, chatID, id int64) string {
	item, err := h.newsroom.CancelEmergency(ctx, id)
	if err != nil {
		h.replyErr(chatID, err)
		return "Ошибка"
	}
	h.reply(chatID, fmt.Sprintf("Срочное #%d отменено", item.ID), nil)
	return "Отменено"
}

func (h *Handler) bumpEmergency(ctx context.Context, chatID, id int64) string {
	items, err := h.newsroom.ListEmergencies(ctx, 0)
	if err != nil {
		h.replyErr(chatID, err)
		return "Ошибка"
	}
	for _, item := range items {
		if item.ID != id {
			continue
		}
		updated, err := h.newsroom.UpdateEmergencyPriority(ctx, id, item.Priority+1)
		if err != nil {
			h.replyErr(chatID, err)
			return "Ошибка"
		}
		return fmt.Sprintf("Приоритет %d", updated.Priority)
	}
	return "Запись уже обработана"
}

func (h *Handler) replyErr(chatID int64, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.reply(chatID, "Отклонено: "+verr.Reason, nil)
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "Не найдено", nil)
	default:
		h.log.Error().Err(err).Msg("bot: ошибка операции")
		h.reply(chatID, "Ошибка: "+err.Error(), nil)
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := media.Split(text, telegram.MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) buildHelpMessage() string {
	return strings.Join([]string{
		"Команды редакции:",
		"/queue — срочные кандидаты с кнопками публикации",
		"/stats [платформа] — расписание и лимиты",
		"/approve <uuid> — одобрить и поставить в публикацию",
		"/reject <uuid> — отклонить",
		"/breaking <uuid> — отметить срочным с пушем",
		"/retract <uuid> — снять с публикации",
	}, "\n")
}

func formatStats(s domain.ScheduleStats) string {
	if !s.Enabled {
		return fmt.Sprintf("%s: выключена", s.Platform)
	}
	limit := "без лимита"
	if s.DailyLimit > 0 {
		limit = fmt.Sprintf("%d/%d, осталось %d", s.PublishedToday, s.DailyLimit, s.Remaining)
	}
	line := fmt.Sprintf("%s: сегодня %s", s.Platform, limit)
	if s.CanPublishNow {
		return line + "\nможно публиковать сейчас"
	}
	line += "\nсейчас нельзя: " + s.Reason
	if s.NextSlotAt != nil {
		line += "\nследующее окно: " + s.NextSlotAt.Format("02.01 15:04 MST")
	}
	return line
}

func actorOf(u *tgbotapi.User) string {
	if u == nil {
		return "telegram"
	}
	if u.UserName != "" {
		return "tg:" + u.UserName
	}
	return "tg:" + strconv.FormatInt(u.ID, 10)
}
