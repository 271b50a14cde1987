package bot

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
)

type recorder struct {
	texts   []string
	answers []string
}

func (r *recorder) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.texts = append(r.texts, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (r *recorder) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		r.answers = append(r.answers, cb.Text)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type stubNewsroom struct {
	queue     []domain.EmergencyQueueItem
	published []int64
	priority  map[int64]int
	approved  []string
}

func (s *stubNewsroom) Content(_ context.Context, id uuid.UUID) (domain.ContentItem, error) {
	return domain.ContentItem{ID: id, Title: "Quake"}, nil
}

func (s *stubNewsroom) Approve(_ context.Context, id uuid.UUID, actor string) (domain.ContentItem, domain.EnqueueResult, error) {
	s.approved = append(s.approved, actor)
	return domain.ContentItem{ID: id, Title: "Quake", CurrentVersionNo: 2}, domain.EnqueueResult{JobID: 11}, nil
}

func (s *stubNewsroom) Reject(context.Context, uuid.UUID, string) (domain.ContentItem, error) {
	return domain.ContentItem{}, domain.NewValidationError("status", "переход недопустим")
}

func (s *stubNewsroom) Retract(context.Context, uuid.UUID, string) (domain.ContentItem, error) {
	return domain.ContentItem{}, domain.ErrNotFound
}

func (s *stubNewsroom) MarkBreaking(_ context.Context, id uuid.UUID, _ bool, _ string) (domain.ContentItem, error) {
	return domain.ContentItem{ID: id, Title: "Quake"}, nil
}

func (s *stubNewsroom) ListEmergencies(context.Context, int) ([]domain.EmergencyQueueItem, error) {
	return s.queue, nil
}

func (s *stubNewsroom) PublishEmergency(_ context.Context, id int64) (domain.EmergencyQueueItem, domain.EnqueueResult, error) {
	s.published = append(s.published, id)
	return domain.EmergencyQueueItem{ID: id, Status: domain.EmergencyPublished}, domain.EnqueueResult{JobID: 99}, nil
}

func (s *stubNewsroom) CancelEmergency(_ context.Context, id int64) (domain.EmergencyQueueItem, error) {
	return domain.EmergencyQueueItem{ID: id, Status: domain.EmergencyCancelled}, nil
}

func (s *stubNewsroom) UpdateEmergencyPriority(_ context.Context, id int64, priority int) (domain.EmergencyQueueItem, error) {
	if s.priority == nil {
		s.priority = map[int64]int{}
	}
	s.priority[id] = priority
	return domain.EmergencyQueueItem{ID: id, Priority: priority}, nil
}

func (s *stubNewsroom) GetScheduleStats(_ context.Context, platform string) (domain.ScheduleStats, error) {
	p, err := domain.ParsePlatform(platform)
	if err != nil {
		return domain.ScheduleStats{}, err
	}
	return domain.ScheduleStats{Platform: p, Enabled: true, PublishedToday: 3, DailyLimit: 5, Remaining: 2, CanPublishNow: true}, nil
}

func (s *stubNewsroom) ScheduleOverview(context.Context) ([]domain.ScheduleStats, error) {
	return []domain.ScheduleStats{{Platform: domain.PlatformWeb, Enabled: true, Remaining: -1, CanPublishNow: true}, {Platform: domain.PlatformX}}, nil
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: 5, UserName: "editor"},
	}}
}

func callback(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		From:    &tgbotapi.User{ID: 5},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func TestQueueListsCandidates(t *testing.T) {
	rec := &recorder{}
	nr := &stubNewsroom{queue: []domain.EmergencyQueueItem{{ID: 7, ContentID: uuid.New(), Priority: 4}}}
	h := NewHandler(rec, zerolog.Nop(), nr, 42)

	h.HandleUpdate(context.Background(), message(42, "/queue"))
	if len(rec.texts) != 1 || !strings.Contains(rec.texts[0], "#7") || !strings.Contains(rec.texts[0], "Quake") {
		t.Fatalf("unexpected replies %q", rec.texts)
	}
}

func TestCallbacksDriveQueue(t *testing.T) {
	rec := &recorder{}
	nr := &stubNewsroom{queue: []domain.EmergencyQueueItem{{ID: 7, Priority: 4}}}
	h := NewHandler(rec, zerolog.Nop(), nr, 42)
	ctx := context.Background()

	h.HandleUpdate(ctx, callback(42, "em_pub:7"))
	if len(nr.published) != 1 || nr.published[0] != 7 {
		t.Fatalf("expected publish of 7, got %v", nr.published)
	}
	h.HandleUpdate(ctx, callback(42, "em_bump:7"))
	if nr.priority[7] != 5 {
		t.Fatalf("expected priority 5, got %d", nr.priority[7])
	}
	h.HandleUpdate(ctx, callback(42, "em_bump:8"))
	want := []string{"Опубликовано", "Приоритет 5", "Запись уже обработана"}
	if strings.Join(rec.answers, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected answers %q", rec.answers)
	}
}

func TestForeignChatIsDenied(t *testing.T) {
	rec := &recorder{}
	nr := &stubNewsroom{}
	h := NewHandler(rec, zerolog.Nop(), nr, 42)

	h.HandleUpdate(context.Background(), callback(1, "em_pub:7"))
	h.HandleUpdate(context.Background(), message(1, "/queue"))
	if len(nr.published) != 0 {
		t.Fatal("foreign chat must not publish")
	}
	if rec.answers[0] != "Нет доступа" || rec.texts[0] != "Нет доступа" {
		t.Fatalf("unexpected replies %q %q", rec.answers, rec.texts)
	}
}

func TestCommandsReportOutcome(t *testing.T) {
	rec := &recorder{}
	nr := &stubNewsroom{}
	h := NewHandler(rec, zerolog.Nop(), nr, 0)
	ctx := context.Background()
	id := uuid.New().String()

	h.HandleUpdate(ctx, message(3, "/approve "+id))
	h.HandleUpdate(ctx, message(3, "/approve nope"))
	h.HandleUpdate(ctx, message(3, "/reject "+id))
	h.HandleUpdate(ctx, message(3, "/retract "+id))
	h.HandleUpdate(ctx, message(3, "/stats x"))
	h.HandleUpdate(ctx, message(3, "/stats fax"))

	if len(nr.approved) != 1 || nr.approved[0] != "tg:editor" {
		t.Fatalf("unexpected approvals %v", nr.approved)
	}
	checks := []string{"задача 11", "Укажите идентификатор", "Отклонено: переход недопустим", "Не найдено", "3/5, осталось 2", "Отклонено: unknown platform fax"}
	if len(rec.texts) != len(checks) {
		t.Fatalf("expected %d replies, got %q", len(checks), rec.texts)
	}
	for i, want := range checks {
		if !strings.Contains(rec.texts[i], want) {
			t.Fatalf("reply %d: expected %q in %q", i, want, rec.texts[i])
		}
	}
}

func TestFormatStatsOverview(t *testing.T) {
	rec := &recorder{}
	h := NewHandler(rec, zerolog.Nop(), &stubNewsroom{}, 0)
	h.HandleUpdate(context.Background(), message(3, "/stats"))
	if len(rec.texts) != 1 || !strings.Contains(rec.texts[0], "web: сегодня без лимита") || !strings.Contains(rec.texts[0], "x: выключена") {
		t.Fatalf("unexpected overview %q", rec.texts)
	}
}
