// Package emergency обнаруживает срочные новости и управляет очередью кандидатов.
package emergency

import (
	"fmt"
	"strings"

	"news-publisher/internal/domain"
	"news-publisher/internal/usecase/textscan"
)

// Detect сканирует материал. Функция не меняет состояние.
// priority <= 0 заменяется на cfg.DefaultPriority. Признак ключевых слов
// срабатывает при cfg.MinKeywordScore > 0 и не меньшем числе совпадений;
// нулевой порог его выключает, срабатывают только категория и доверенный источник.
func Detect(item domain.ContentItem, source domain.Source, cfg domain.EmergencyConfig, priority int) domain.Detection {
	if priority <= 0 {
		priority = cfg.DefaultPriority
	}
	matched := textscan.FindKeywords(textscan.Corpus(item), cfg.Keywords)
	det := domain.Detection{
		Priority:        priority,
		MatchedKeywords: matched,
		Score:           len(matched),
	}

	var reasons []string
	if cfg.MinKeywordScore > 0 && det.Score >= cfg.MinKeywordScore {
		reasons = append(reasons, fmt.Sprintf("keywords %d/%d: %s", det.Score, cfg.MinKeywordScore, strings.Join(matched, ", ")))
	}
	if source.Category != "" && containsFold(cfg.Categories, source.Category) {
		reasons = append(reasons, "category: "+source.Category)
	}
	if isTrusted(source, cfg) {
		reasons = append(reasons, "trusted source: "+source.Name)
	}

	det.IsEmergency = len(reasons) > 0
	if det.IsEmergency {
		det.Reason = strings.Join(reasons, "; ")
	} else {
		det.Reason = fmt.Sprintf("no emergency signals (score %d)", det.Score)
	}
	return det
}

func isTrusted(source domain.Source, cfg domain.EmergencyConfig) bool {
	if source.EmergencyTrigger {
		return true
	}
	for _, id := range cfg.TrustedSources {
		if id == source.ID {
			return true
		}
	}
	return false
}

func containsFold(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}
