// Package telegram отправляет редакторам уведомления о срочных материалах через Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"news-publisher/internal/adapters/media"
	"news-publisher/internal/domain"
	"news-publisher/internal/infra/metrics"
)

// MessageLimit — максимальная длина сообщения Telegram в рунах.
const MessageLimit = 4096

// Префиксы callback-данных кнопок очереди срочных.
const (
	CallbackPublish = "em_pub:"
	CallbackCancel  = "em_cancel:"
	CallbackBump    = "em_bump:"
)

// Sender — часть tgbotapi.BotAPI, которая нужна для отправки.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier реализует domain.EmergencyNotifier.
type Notifier struct {
	bot    Sender
	chatID int64
}

var _ domain.EmergencyNotifier = (*Notifier)(nil)

// NewNotifier создаёт уведомитель для чата редакции.
func NewNotifier(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// NotifyEmergency реализует domain.EmergencyNotifier.
func (n *Notifier) NotifyEmergency(_ context.Context, item domain.EmergencyQueueItem, content domain.ContentItem) error {
	if n.bot == nil || n.chatID == 0 {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	parts := media.Split(FormatEmergency(item, content), MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(n.chatID, part)
		if i == 0 {
			kb := EmergencyKeyboard(item.ID)
			msg.ReplyMarkup = kb
		}
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_emergency", strconv.FormatInt(n.chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return fmt.Errorf("send emergency %d: %w", item.ID, err)
		}
	}
	return nil
}

// FormatEmergency готовит текст карточки срочного кандидата.
func FormatEmergency(item domain.EmergencyQueueItem, content domain.ContentItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Срочное #%d, приоритет %d\n", item.ID, item.Priority)
	b.WriteString(content.Title)
	b.WriteString("\n")
	if content.Summary != "" {
		b.WriteString("\n")
		b.WriteString(content.Summary)
		b.WriteString("\n")
	}
	if len(item.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "\nКлючевые слова: %s", strings.Join(item.MatchedKeywords, ", "))
	}
	if item.Reason != "" {
		fmt.Fprintf(&b, "\nПричина: %s", item.Reason)
	}
	if content.URL != "" {
		fmt.Fprintf(&b, "\n%s", content.URL)
	}
	return b.String()
}

// EmergencyKeyboard строит кнопки публикации, отмены и повышения приоритета.
func EmergencyKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	sid := strconv.FormatInt(id, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Опубликовать", CallbackPublish+sid),
			tgbotapi.NewInlineKeyboardButtonData("Отменить", CallbackCancel+sid),
			tgbotapi.NewInlineKeyboardButtonData("Приоритет +1", CallbackBump+sid),
		),
	)
}

// ParseCallbackID извлекает идентификатор записи из callback-данных с префиксом.
func ParseCallbackID(data, prefix string) (int64, bool) {
	if !strings.HasPrefix(data, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
