// Package lifecycle владеет статусом и счётчиком версий материала.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"time"

	"news-publisher/internal/domain"
)

// Command описывает одно редакционное или системное действие над материалом.
type Command struct {
	Action           domain.RevisionAction
	Actor            string
	Decision         *domain.RuleDecision
	Patch            *domain.ContentPatch
	ScheduledAt      *time.Time
	PushRequired     bool
	PublishedVersion int
}

var preparing = []domain.ContentStatus{
	domain.ContentStatusAutoReady,
	domain.ContentStatusPendingApproval,
	domain.ContentStatusScheduled,
}

var publishable = append(append([]domain.ContentStatus{}, preparing...), domain.ContentStatusReadyToPublish)

// allowedFrom перечисляет статусы, из которых допустимо действие.
var allowedFrom = map[domain.RevisionAction][]domain.ContentStatus{
	domain.ActionTriaged:        {domain.ContentStatusNew},
	domain.ActionDraftSaved:     append([]domain.ContentStatus{domain.ContentStatusNew}, publishable...),
	domain.ActionApproved:       preparing,
	domain.ActionRejected:       publishable,
	domain.ActionScheduled:      publishable,
	domain.ActionBreakingMarked: append(append([]domain.ContentStatus{}, publishable...), domain.ContentStatusPublished),
	domain.ActionPublished:      append(append([]domain.ContentStatus{}, publishable...), domain.ContentStatusPublished),
	domain.ActionCorrected:      {domain.ContentStatusPublished},
	domain.ActionRetracted:      {domain.ContentStatusPublished},
	domain.ActionResubmitted:    {domain.ContentStatusRejected},
}

// Allowed сообщает, допустимо ли действие из статуса.
func Allowed(action domain.RevisionAction, from domain.ContentStatus) bool {
	for _, s := range allowedFrom[action] {
		if s == from {
			return true
		}
	}
	return false
}

// Publishable сообщает, можно ли отправлять материал в каналы из статуса.
func Publishable(status domain.ContentStatus) bool {
	return Allowed(domain.ActionPublished, status)
}

// Apply вычисляет новое состояние материала. Функция не имеет побочных эффектов;
// при ошибке исходный материал не меняется.
func Apply(item domain.ContentItem, cmd Command, now time.Time) (domain.ContentItem, error) {
	if _, known := allowedFrom[cmd.Action]; !known {
		return item, domain.NewValidationError("action", fmt.Sprintf("неизвестное действие %q", cmd.Action))
	}
	if !Allowed(cmd.Action, item.Status) {
		return item, domain.NewValidationError("status", fmt.Sprintf("действие %s недопустимо из статуса %s", cmd.Action, item.Status))
	}

	next := item
	next.Channels = append([]domain.Platform(nil), item.Channels...)

	switch cmd.Action {
	case domain.ActionTriaged:
		if cmd.Decision == nil {
			return item, domain.NewValidationError("decision", "решение не передано")
		}
		d := cmd.Decision
		next.DecisionType = d.DecisionType
		next.DecisionReason = d.Reason
		next.MatchedRuleID = d.MatchedRuleID
		next.Status = d.DecisionType.InitialStatus()
		if d.DecisionType == domain.DecisionSchedule {
			if d.ScheduledAt == nil {
				return item, domain.NewValidationError("scheduled_at", "для отложенной публикации нужно время")
			}
			at := *d.ScheduledAt
			next.ScheduledAt = &at
		}
		if len(next.Channels) == 0 {
			next.Channels = append([]domain.Platform(nil), d.TargetPlatforms...)
		}
	case domain.ActionDraftSaved, domain.ActionCorrected:
		if cmd.Patch == nil {
			return item, domain.NewValidationError("patch", "правка не передана")
		}
		if err := applyPatch(&next, *cmd.Patch); err != nil {
			return item, err
		}
	case domain.ActionApproved:
		next.Status = domain.ContentStatusReadyToPublish
	case domain.ActionRejected:
		next.Status = domain.ContentStatusRejected
	case domain.ActionScheduled:
		if cmd.ScheduledAt == nil {
			return item, domain.NewValidationError("scheduled_at", "время публикации не задано")
		}
		at := *cmd.ScheduledAt
		next.ScheduledAt = &at
		next.Status = domain.ContentStatusScheduled
	case domain.ActionBreakingMarked:
		if cmd.PushRequired && !item.HasChannel(domain.PlatformMobile) {
			return item, domain.NewValidationError("channels", "для срочной новости с push нужен канал mobile")
		}
		next.IsBreaking = true
	case domain.ActionPublished:
		next.Status = domain.ContentStatusPublished
		if cmd.PublishedVersion > next.PublishedVersionNo {
			next.PublishedVersionNo = cmd.PublishedVersion
		}
	case domain.ActionRetracted:
		next.Status = domain.ContentStatusRetracted
		next.IsRetracted = true
	case domain.ActionResubmitted:
		next.Status = domain.ContentStatusPendingApproval
	}

	next.CurrentVersionNo = item.CurrentVersionNo + 1
	next.UpdatedAt = now
	return next, nil
}

func applyPatch(item *domain.ContentItem, p domain.ContentPatch) error {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Summary != nil {
		item.Summary = *p.Summary
	}
	if p.Body != nil {
		item.Body = *p.Body
	}
	if p.ImageURL != nil {
		item.ImageURL = *p.ImageURL
	}
	if p.Channels != nil {
		channels := make([]domain.Platform, 0, len(p.Channels))
		for _, ch := range p.Channels {
			parsed, err := domain.ParsePlatform(string(ch))
			if err != nil {
				return err
			}
			channels = append(channels, parsed)
		}
		item.Channels = channels
	}
	return nil
}

type snapshot struct {
	Status             domain.ContentStatus `json:"status"`
	Title              string               `json:"title"`
	Summary            string               `json:"summary"`
	Body               string               `json:"body"`
	ImageURL           string               `json:"image_url,omitempty"`
	Channels           []domain.Platform    `json:"channels"`
	DecisionType       domain.DecisionType  `json:"decision_type,omitempty"`
	DecisionReason     string               `json:"decision_reason,omitempty"`
	ScheduledAt        *time.Time           `json:"scheduled_at,omitempty"`
	IsBreaking         bool                 `json:"is_breaking"`
	IsRetracted        bool                 `json:"is_retracted"`
	PublishedVersionNo int                  `json:"published_version_no"`
}

// Revision строит снимок состояния для новой версии.
func Revision(item domain.ContentItem, action domain.RevisionAction, actor string, now time.Time) (domain.ContentRevision, error) {
	data, err := json.Marshal(snapshot{
		Status:             item.Status,
		Title:              item.Title,
		Summary:            item.Summary,
		Body:               item.Body,
		ImageURL:           item.ImageURL,
		Channels:           item.Channels,
		DecisionType:       item.DecisionType,
		DecisionReason:     item.DecisionReason,
		ScheduledAt:        item.ScheduledAt,
		IsBreaking:         item.IsBreaking,
		IsRetracted:        item.IsRetracted,
		PublishedVersionNo: item.PublishedVersionNo,
	})
	if err != nil {
		return domain.ContentRevision{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return domain.ContentRevision{
		ContentID:  item.ID,
		VersionNo:  item.CurrentVersionNo,
		ActionType: action,
		Snapshot:   data,
		Actor:      actor,
		CreatedAt:  now,
	}, nil
}
