package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"news-publisher/internal/domain"
)

// FilePolicyStore читает конфигурацию публикации из YAML-файла и перечитывает его при изменении.
type FilePolicyStore struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	cfg     domain.PublishingConfig
}

// NewFilePolicyStore создаёт хранилище и сразу проверяет файл.
func NewFilePolicyStore(path string) (*FilePolicyStore, error) {
	s := &FilePolicyStore{path: path}
	if _, err := s.LoadPublishingConfig(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadPublishingConfig реализует domain.PolicyStore.
func (s *FilePolicyStore) LoadPublishingConfig(context.Context) (domain.PublishingConfig, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return domain.PublishingConfig{}, fmt.Errorf("stat policy file: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.modTime.IsZero() && info.ModTime().Equal(s.modTime) {
		return s.cfg, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.PublishingConfig{}, fmt.Errorf("read policy file: %w", err)
	}
	cfg, err := ParsePolicy(data)
	if err != nil {
		return domain.PublishingConfig{}, err
	}
	s.cfg = cfg
	s.modTime = info.ModTime()
	return cfg, nil
}

// ParsePolicy разбирает YAML и проверяет платформы.
func ParsePolicy(data []byte) (domain.PublishingConfig, error) {
	var cfg domain.PublishingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.PublishingConfig{}, fmt.Errorf("parse policy yaml: %w", err)
	}
	for p := range cfg.Policies {
		if _, err := domain.ParsePlatform(string(p)); err != nil {
			return domain.PublishingConfig{}, err
		}
	}
	for _, p := range cfg.DefaultPlatforms {
		if _, err := domain.ParsePlatform(string(p)); err != nil {
			return domain.PublishingConfig{}, err
		}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	return cfg, nil
}
