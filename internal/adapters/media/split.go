package media

import "strings"

// Split делит текст на части не длиннее limit рун. Сначала ищет перевод строки,
// затем пробел, и только потом режет слово.
func Split(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || limit <= 0 {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.TrimSpace(string(runes[start:])); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := lastBreak(runes[start:end], '\n')
		if split == -1 {
			split = lastBreak(runes[start:end], ' ')
		}
		if split == -1 {
			split = end
		} else {
			split += start
		}

		if chunk := strings.TrimSpace(string(runes[start:split])); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && (runes[start] == '\n' || runes[start] == ' ') {
			start++
		}
	}

	if len(parts) == 0 {
		return []string{trimmed}
	}
	return parts
}

// lastBreak возвращает позицию сразу после последнего разделителя sep или -1.
func lastBreak(window []rune, sep rune) int {
	for i := len(window); i > 0; i-- {
		if window[i-1] == sep {
			return i
		}
	}
	return -1
}

// Truncate обрезает текст до limit рун по границе слова и добавляет многоточие.
func Truncate(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if limit <= 0 || len(runes) <= limit {
		return string(runes)
	}
	cut := limit - 1
	if i := lastBreak(runes[:cut], ' '); i > 0 {
		cut = i - 1
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
