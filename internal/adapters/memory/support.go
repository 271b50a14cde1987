package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"news-publisher/internal/domain"
)

// ErrCacheMiss возвращается Cache.Get для отсутствующего или истёкшего ключа.
var ErrCacheMiss = errors.New("cache miss")

type cacheEntry struct {
	value   []byte
	expires time.Time
}

// Cache реализует domain.Cache в памяти.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheEntry
	now   func() time.Time
}

// NewCache создаёт кэш.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheEntry), now: time.Now}
}

// Once выполняет функцию, если ключ ещё не задан. При ошибке ключ снимается.
func (c *Cache) Once(key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	if _, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return nil
	}
	c.items[key] = cacheEntry{value: []byte("1"), expires: c.now().Add(ttl)}
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Set задаёт значение.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{value: append([]byte(nil), value...), expires: c.now().Add(ttl)}
	return nil
}

// Get возвращает значение или ErrCacheMiss.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lookup(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (c *Cache) lookup(key string) (cacheEntry, bool) {
	entry, ok := c.items[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !entry.expires.After(c.now()) {
		delete(c.items, key)
		return cacheEntry{}, false
	}
	return entry, true
}

// Signal реализует domain.JobSignal на буферизованном канале.
type Signal struct {
	ch chan struct{}
}

// NewSignal создаёт сигнал.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify будит одного ожидающего. Повторные сигналы до пробуждения схлопываются.
func (s *Signal) Notify(context.Context) error {
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

// Wait ждёт сигнала не дольше timeout.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// Events запоминает отправленные события.
type Events struct {
	mu     sync.Mutex
	events []domain.PublishEvent
}

// PublishEvent реализует domain.EventPublisher.
func (e *Events) PublishEvent(_ context.Context, event domain.PublishEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// Names возвращает имена событий в порядке отправки.
func (e *Events) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Event)
	}
	return out
}

// StaticPolicy реализует domain.PolicyStore с неизменной конфигурацией.
type StaticPolicy struct {
	mu  sync.RWMutex
	cfg domain.PublishingConfig
}

// NewStaticPolicy создаёт хранилище политики.
func NewStaticPolicy(cfg domain.PublishingConfig) *StaticPolicy {
	return &StaticPolicy{cfg: cfg}
}

// LoadPublishingConfig реализует domain.PolicyStore.
func (p *StaticPolicy) LoadPublishingConfig(context.Context) (domain.PublishingConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg, nil
}

// Replace подменяет конфигурацию целиком.
func (p *StaticPolicy) Replace(cfg domain.PublishingConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}
