package http

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// TelegramSecretHeader — заголовок с секретом вебхука Telegram.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TokenAuthMiddleware пропускает запросы с заголовком Authorization: Bearer <token>.
// Пустой token отключает проверку.
func TokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !hmac.Equal([]byte(got), []byte(token)) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WebhookSecretMiddleware проверяет секрет, который Telegram передаёт с каждым обновлением.
func WebhookSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hmac.Equal([]byte(r.Header.Get(TelegramSecretHeader)), []byte(secret)) {
				http.Error(w, "подпись недействительна", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
