package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"news-publisher/internal/domain"
)

const policyKey = "publishing_config"

// PolicyStore кэширует конфигурацию публикации поверх медленного хранилища.
type PolicyStore struct {
	next  domain.PolicyStore
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewPolicyStore оборачивает next. При ttl <= 0 кэш не используется.
func NewPolicyStore(next domain.PolicyStore, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *PolicyStore {
	return &PolicyStore{next: next, cache: cache, ttl: ttl, log: logger.With().Str("component", "policy_cache").Logger()}
}

// LoadPublishingConfig реализует domain.PolicyStore.
func (s *PolicyStore) LoadPublishingConfig(ctx context.Context) (domain.PublishingConfig, error) {
	if s.ttl <= 0 || s.cache == nil {
		return s.next.LoadPublishingConfig(ctx)
	}
	if data, err := s.cache.Get(policyKey); err == nil {
		var cfg domain.PublishingConfig
		if err := json.Unmarshal(data, &cfg); err == nil {
			return cfg, nil
		}
		s.log.Warn().Msg("повреждённая запись кэша политики, перечитываем")
	}

	cfg, err := s.next.LoadPublishingConfig(ctx)
	if err != nil {
		return domain.PublishingConfig{}, err
	}
	data, err := json.Marshal(cfg)
	if err == nil {
		err = s.cache.Set(policyKey, data, s.ttl)
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("не удалось сохранить политику в кэш")
	}
	return cfg, nil
}
