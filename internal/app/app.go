// Package app собирает сервисы редакции из конфигурации.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"news-publisher/internal/adapters/channels"
	"news-publisher/internal/adapters/media"
	"news-publisher/internal/adapters/repo"
	"news-publisher/internal/domain"
	"news-publisher/internal/infra/cache"
	"news-publisher/internal/infra/config"
	"news-publisher/internal/infra/db"
	"news-publisher/internal/infra/id"
	"news-publisher/internal/infra/queue"
	"news-publisher/internal/usecase/emergency"
	"news-publisher/internal/usecase/lifecycle"
	"news-publisher/internal/usecase/newsroom"
	"news-publisher/internal/usecase/policy"
	"news-publisher/internal/usecase/publish"
	"news-publisher/internal/usecase/rules"
)

// Options задают необязательные части сборки.
type Options struct {
	// Notifier получает уведомления о срочных кандидатах. nil отключает уведомления.
	Notifier domain.EmergencyNotifier
	// WithChannels подключает HTTP-шлюзы платформ. Нужен только процессу публикации.
	WithChannels bool
}

// Application держит собранные сервисы и освобождает ресурсы в Close.
type Application struct {
	Pool      *pgxpool.Pool
	Repo      *repo.Postgres
	Newsroom  *newsroom.Service
	Scheduler *publish.Scheduler
	Emergency *emergency.Service

	redis  *redis.Client
	events *queue.RabbitEventPublisher
	log    zerolog.Logger
}

// New подключается к хранилищам и связывает сервисы.
func New(ctx context.Context, cfg config.AppConfig, opts Options, logger zerolog.Logger) (*Application, error) {
	pool, err := db.Connect(ctx, cfg.PGDSN, 10)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	a := &Application{Pool: pool, Repo: repo.NewPostgres(pool), log: logger}

	var (
		signal   domain.JobSignal
		appCache domain.Cache
		events   domain.EventPublisher
	)
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		signal = queue.NewRedisJobSignal(a.redis, cfg.Publish.SignalKey)
		appCache = cache.NewRedis(a.redis, "newsroom:")
	} else {
		logger.Warn().Msg("app: REDIS_ADDR не задан, сигналы и кэш отключены")
	}
	if cfg.RabbitURL != "" {
		a.events, err = queue.NewRabbitEventPublisher(cfg.RabbitURL, cfg.EventsExchange)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("подключение к RabbitMQ: %w", err)
		}
		events = a.events
	}

	policies, err := policyStore(cfg, a.Repo, appCache, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	emergencyCfg, err := cfg.EmergencyConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	ids, err := id.NewGenerator(cfg.NodeID)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("генератор идентификаторов: %w", err)
	}

	var registry publish.Registry
	if opts.WithChannels {
		registry, err = channelRegistry(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	clock := domain.SystemClock()
	policySvc := policy.NewService(policies, a.Repo, clock, logger)
	lifecycleSvc := lifecycle.NewService(a.Repo, a.Repo, events, clock, logger)
	a.Scheduler = publish.NewScheduler(publish.Deps{
		Jobs:      a.Repo,
		Logs:      a.Repo,
		Contents:  a.Repo,
		Published: a.Repo,
		Media:     media.NewRenderer(media.DefaultLimits()),
		Policy:    policySvc,
		Lifecycle: lifecycleSvc,
		Channels:  registry,
		Events:    events,
		Signal:    signal,
		IDs:       ids,
		Clock:     clock,
	}, publish.Config{
		MaxAttempts:    cfg.Publish.MaxAttempts,
		BaseBackoff:    cfg.Publish.BaseBackoff,
		MaxBackoff:     cfg.Publish.MaxBackoff,
		ChannelTimeout: cfg.Publish.ChannelTimeout,
		RecheckAfter:   publish.DefaultConfig().RecheckAfter,
		WebPathPrefix:  cfg.Publish.WebPathPrefix,
	}, logger)
	a.Emergency = emergency.NewService(emergency.Deps{
		Queue:    a.Repo,
		Contents: a.Repo,
		Sources:  a.Repo,
		Jobs:     a.Scheduler,
		Notifier: opts.Notifier,
		Cache:    appCache,
		Events:   events,
		Clock:    clock,
	}, emergency.Options{
		Config:       emergencyCfg,
		AutoEnqueue:  cfg.Emergency.AutoEnqueue,
		AutoDispatch: cfg.Emergency.AutoDispatch,
	}, logger)
	a.Newsroom = newsroom.New(newsroom.Deps{
		Contents:  a.Repo,
		Rules:     rules.NewService(a.Repo, a.Repo, a.Repo, policies, clock, logger),
		Lifecycle: lifecycleSvc,
		Policy:    policySvc,
		Emergency: a.Emergency,
		Publish:   a.Scheduler,
		Clock:     clock,
	}, logger)
	return a, nil
}

// Worker создаёт воркер публикации с настройками из конфигурации.
func (a *Application) Worker(cfg config.AppConfig) *publish.Worker {
	return publish.NewWorker(a.Scheduler, publish.WorkerConfig{
		Concurrency:  cfg.Publish.Workers,
		BatchSize:    cfg.Publish.ClaimLimit,
		PollInterval: cfg.Publish.PollInterval,
		StaleAfter:   cfg.Publish.StaleAfter,
	}, a.log)
}

// Close закрывает соединения.
func (a *Application) Close() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn().Err(err).Msg("app: ошибка закрытия RabbitMQ")
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.Pool.Close()
}

// FallbackPolicy используется, пока в БД нет ни одной версии настроек.
func FallbackPolicy(tz string) domain.PublishingConfig {
	return domain.PublishingConfig{
		Timezone:         tz,
		DefaultPlatforms: []domain.Platform{domain.PlatformWeb},
		Policies: map[domain.Platform]domain.PublishingPolicy{
			domain.PlatformWeb: {Enabled: true},
		},
	}
}

func policyStore(cfg config.AppConfig, pg *repo.Postgres, c domain.Cache, logger zerolog.Logger) (domain.PolicyStore, error) {
	var next domain.PolicyStore
	if cfg.Policy.File != "" {
		fileStore, err := config.NewFilePolicyStore(cfg.Policy.File)
		if err != nil {
			return nil, fmt.Errorf("настройки публикации из файла: %w", err)
		}
		next = fileStore
	} else {
		next = repo.NewPolicyStore(pg, FallbackPolicy(cfg.TZ))
	}
	if c == nil {
		return next, nil
	}
	return cache.NewPolicyStore(next, c, cfg.Policy.CacheTTL, logger), nil
}

func channelRegistry(cfg config.AppConfig) (publish.Registry, error) {
	var publishers []domain.ChannelPublisher
	for platform, ep := range cfg.Endpoints() {
		p, err := channels.NewHTTPPublisher(platform, ep.URL, ep.Token, channels.WithTimeout(cfg.Publish.ChannelTimeout))
		if err != nil {
			return nil, fmt.Errorf("шлюз %s: %w", platform, err)
		}
		publishers = append(publishers, p)
	}
	return publish.NewRegistry(publishers...), nil
}
