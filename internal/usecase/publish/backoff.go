package publish

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryDelay возвращает паузу перед попыткой attempt+1: base * 2^(attempt-1), не больше maxDelay.
// Если канал попросил подождать дольше (retryAfter), используется его значение.
func RetryDelay(attempt int, base, maxDelay, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	delay := base
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}
