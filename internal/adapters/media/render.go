// Package media готовит содержимое материала под ограничения каждой платформы.
package media

import (
	"context"
	"fmt"
	"strings"

	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/textscan"
)

// Limits задаёт ограничения длины текста по платформам в рунах.
type Limits struct {
	MobileText       int
	XPost            int
	InstagramCaption int
}

// DefaultLimits возвращает ограничения площадок по умолчанию.
func DefaultLimits() Limits {
	return Limits{MobileText: 180, XPost: 280, InstagramCaption: 2200}
}

// Renderer реализует domain.MediaProvider для текстовых площадок.
type Renderer struct {
	limits Limits
}

var _ domain.MediaProvider = (*Renderer)(nil)

// NewRenderer создаёт подготовитель содержимого.
func NewRenderer(limits Limits) *Renderer {
	def := DefaultLimits()
	if limits.MobileText <= 0 {
		limits.MobileText = def.MobileText
	}
	if limits.XPost <= 0 {
		limits.XPost = def.XPost
	}
	if limits.InstagramCaption <= 0 {
		limits.InstagramCaption = def.InstagramCaption
	}
	return &Renderer{limits: limits}
}

// Render реализует domain.MediaProvider.
func (r *Renderer) Render(_ context.Context, item domain.ContentItem, platform domain.Platform, silent bool) (domain.RenderedPayload, error) {
	title := strings.TrimSpace(item.Title)
	body := strings.TrimSpace(textscan.PlainText(item.Body))
	lead := strings.TrimSpace(item.Summary)
	if lead == "" {
		lead = body
	}
	if title == "" && lead == "" {
		return domain.RenderedPayload{}, fmt.Errorf("%s: пустой материал: %w", platform, domain.ErrPayloadUnavailable)
	}

	payload := domain.RenderedPayload{
		Platform: platform,
		Title:    title,
		URL:      item.URL,
		ImageURL: item.ImageURL,
		Silent:   silent,
	}

	switch platform {
	case domain.PlatformWeb:
		if body == "" {
			return domain.RenderedPayload{}, fmt.Errorf("web: нет текста: %w", domain.ErrPayloadUnavailable)
		}
		payload.Text = body
	case domain.PlatformMobile:
		payload.Text = Truncate(lead, r.limits.MobileText)
	case domain.PlatformX:
		thread := joinNonEmpty("\n\n", title, lead)
		payload.Parts = Split(thread, r.limits.XPost)
		if item.URL != "" {
			payload.Parts = append(payload.Parts, item.URL)
		}
		payload.Text = payload.Parts[0]
	case domain.PlatformInstagram:
		if item.ImageURL == "" {
			return domain.RenderedPayload{}, fmt.Errorf("instagram: нет изображения: %w", domain.ErrPayloadUnavailable)
		}
		payload.Text = Truncate(joinNonEmpty("\n\n", title, lead), r.limits.InstagramCaption)
	default:
		return domain.RenderedPayload{}, fmt.Errorf("%s: неизвестная платформа: %w", platform, domain.ErrPayloadUnavailable)
	}
	return payload, nil
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
