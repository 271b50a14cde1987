// Package textscan готовит текст материала для поиска ключевых слов.
package textscan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"news-publisher/internal/domain"
)

// PlainText убирает HTML-разметку. Если разметки нет или её не удалось разобрать, возвращает исходную строку.
func PlainText(raw string) string {
	if !strings.ContainsAny(raw, "<&") {
		return raw
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Corpus возвращает title+summary+body в нижнем регистре.
func Corpus(item domain.ContentItem) string {
	parts := []string{item.Title, item.Summary, PlainText(item.Body)}
	return strings.ToLower(strings.Join(parts, " "))
}

// FindKeywords возвращает ключевые слова, встречающиеся в corpus как подстрока, в порядке перечисления.
func FindKeywords(corpus string, keywords []string) []string {
	var found []string
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if strings.Contains(corpus, k) {
			found = append(found, k)
		}
	}
	return found
}
