package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"news-publisher/internal/domain"
)

// PolicyStore хранит версии PublishingConfig в jsonb и отдаёт последнюю.
type PolicyStore struct {
	pg       *Postgres
	fallback domain.PublishingConfig
}

var _ domain.PolicyStore = (*PolicyStore)(nil)

// NewPolicyStore создаёт хранилище политик. fallback отдаётся, пока в таблице нет ни одной версии.
func NewPolicyStore(pg *Postgres, fallback domain.PublishingConfig) *PolicyStore {
	return &PolicyStore{pg: pg, fallback: fallback}
}

// LoadPublishingConfig реализует domain.PolicyStore.
func (s *PolicyStore) LoadPublishingConfig(ctx context.Context) (domain.PublishingConfig, error) {
	ctx, cancel := s.pg.connCtx(ctx)
	defer cancel()

	var raw []byte
	start := time.Now()
	err := s.pg.pool.QueryRow(ctx, `SELECT config FROM publishing_configs ORDER BY version DESC LIMIT 1`).Scan(&raw)
	observe("publishing_configs_latest", "publishing_configs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.fallback, nil
	}
	if err != nil {
		return domain.PublishingConfig{}, err
	}
	var cfg domain.PublishingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.PublishingConfig{}, fmt.Errorf("decode publishing config: %w", err)
	}
	return cfg, nil
}

// SavePublishingConfig записывает новую версию. Версия должна быть больше последней сохранённой.
func (s *PolicyStore) SavePublishingConfig(ctx context.Context, cfg domain.PublishingConfig) error {
	ctx, cancel := s.pg.connCtx(ctx)
	defer cancel()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode publishing config: %w", err)
	}
	start := time.Now()
	tag, err := s.pg.pool.Exec(ctx, `
INSERT INTO publishing_configs (version, config)
SELECT $1::int, $2::jsonb
WHERE $1::int > COALESCE((SELECT max(version) FROM publishing_configs), 0)
`, cfg.Version, raw)
	observe("publishing_configs_insert", "publishing_configs", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NewValidationError("version", "версия политики должна расти")
	}
	return nil
}
