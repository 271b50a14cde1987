package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"news-publisher/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

// LoadLocation нормализует имя часового пояса и загружает его. Пустое имя означает UTC.
func LoadLocation(raw string) (*time.Location, error) {
	if strings.TrimSpace(raw) == "" {
		return time.UTC, nil
	}
	name, err := normalizeTimezone(raw)
	if err != nil {
		return nil, &domain.ValidationError{Field: "timezone", Reason: fmt.Sprintf("%q: %v", raw, err)}
	}
	return time.LoadLocation(name)
}

func normalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	lower := strings.ToLower(candidate)
	parts := strings.Split(lower, "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
