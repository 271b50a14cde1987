package publish

import (
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLen = 80

// Slug строит стабильный идентификатор страницы: буквы и цифры заголовка через дефис
// и первые восемь символов UUID материала.
func Slug(title string, id uuid.UUID) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			if b.Len() >= maxSlugLen {
				break
			}
			continue
		}
		dash = true
	}
	suffix := id.String()[:8]
	if b.Len() == 0 {
		return suffix
	}
	return b.String() + "-" + suffix
}

// WebPath возвращает адрес страницы вида <prefix>/2006/01/02/<slug>.
func WebPath(prefix string, at time.Time, slug string) string {
	return path.Join("/", prefix, at.UTC().Format("2006/01/02"), slug)
}
