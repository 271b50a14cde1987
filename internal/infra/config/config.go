package config

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"news-publisher/internal/domain"
)

// ChannelEndpoint — адрес и токен HTTP-шлюза платформы.
type ChannelEndpoint struct {
	URL   string
	Token string
}

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	NodeID      int64  `envconfig:"NODE_ID" default:"1"`
	APIToken    string `envconfig:"API_TOKEN"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"newsroom.events"`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL    string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret string `envconfig:"TG_WEBHOOK_SECRET"`
		EditorChatID  int64  `envconfig:"TG_EDITOR_CHAT_ID"`
	} `envconfig:""`

	Publish struct {
		MaxAttempts    int           `envconfig:"PUBLISH_MAX_ATTEMPTS" default:"5"`
		BaseBackoff    time.Duration `envconfig:"PUBLISH_BASE_BACKOFF" default:"30s"`
		MaxBackoff     time.Duration `envconfig:"PUBLISH_MAX_BACKOFF" default:"30m"`
		ChannelTimeout time.Duration `envconfig:"PUBLISH_CHANNEL_TIMEOUT" default:"15s"`
		PollInterval   time.Duration `envconfig:"PUBLISH_POLL_INTERVAL" default:"5s"`
		ClaimLimit     int           `envconfig:"PUBLISH_CLAIM_LIMIT" default:"20"`
		Workers        int           `envconfig:"PUBLISH_WORKERS" default:"4"`
		StaleAfter     time.Duration `envconfig:"PUBLISH_STALE_AFTER" default:"10m"`
		SignalKey      string        `envconfig:"PUBLISH_SIGNAL_KEY" default:"publish_jobs_signal"`
		WebPathPrefix  string        `envconfig:"WEB_PATH_PREFIX" default:"/news"`
	} `envconfig:""`

	Policy struct {
		File     string        `envconfig:"POLICY_FILE"`
		CacheTTL time.Duration `envconfig:"POLICY_CACHE_TTL" default:"30s"`
	} `envconfig:""`

	Emergency struct {
		Keywords        []string `envconfig:"EMERGENCY_KEYWORDS"`
		MinScore        int      `envconfig:"EMERGENCY_MIN_SCORE" default:"2"`
		Categories      []string `envconfig:"EMERGENCY_CATEGORIES"`
		TrustedSources  []string `envconfig:"EMERGENCY_TRUSTED_SOURCES"`
		DefaultPriority int      `envconfig:"EMERGENCY_DEFAULT_PRIORITY" default:"5"`
		AutoEnqueue     bool     `envconfig:"EMERGENCY_AUTO_ENQUEUE" default:"true"`
		AutoDispatch    bool     `envconfig:"EMERGENCY_AUTO_DISPATCH" default:"false"`
	} `envconfig:""`

	Channels struct {
		WebURL         string `envconfig:"CHANNEL_WEB_URL"`
		WebToken       string `envconfig:"CHANNEL_WEB_TOKEN"`
		MobileURL      string `envconfig:"CHANNEL_MOBILE_URL"`
		MobileToken    string `envconfig:"CHANNEL_MOBILE_TOKEN"`
		XURL           string `envconfig:"CHANNEL_X_URL"`
		XToken         string `envconfig:"CHANNEL_X_TOKEN"`
		InstagramURL   string `envconfig:"CHANNEL_INSTAGRAM_URL"`
		InstagramToken string `envconfig:"CHANNEL_INSTAGRAM_TOKEN"`
	} `envconfig:""`
}

// Load читает .env (если есть) и загружает конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse загружает конфиг из окружения без чтения .env.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Endpoints возвращает настроенные шлюзы платформ. Платформы без URL пропускаются.
func (c AppConfig) Endpoints() map[domain.Platform]ChannelEndpoint {
	all := map[domain.Platform]ChannelEndpoint{
		domain.PlatformWeb:       {URL: c.Channels.WebURL, Token: c.Channels.WebToken},
		domain.PlatformMobile:    {URL: c.Channels.MobileURL, Token: c.Channels.MobileToken},
		domain.PlatformX:         {URL: c.Channels.XURL, Token: c.Channels.XToken},
		domain.PlatformInstagram: {URL: c.Channels.InstagramURL, Token: c.Channels.InstagramToken},
	}
	out := make(map[domain.Platform]ChannelEndpoint, len(all))
	for p, ep := range all {
		if strings.TrimSpace(ep.URL) != "" {
			out[p] = ep
		}
	}
	return out
}

// EmergencyConfig собирает настройки детектора срочных новостей.
// EMERGENCY_MIN_SCORE и EMERGENCY_DEFAULT_PRIORITY должны быть не меньше 1:
// нулевой порог в детекторе выключает признак ключевых слов.
func (c AppConfig) EmergencyConfig() (domain.EmergencyConfig, error) {
	if c.Emergency.MinScore < 1 {
		return domain.EmergencyConfig{}, domain.NewValidationError("EMERGENCY_MIN_SCORE", "должен быть не меньше 1")
	}
	if c.Emergency.DefaultPriority < 1 {
		return domain.EmergencyConfig{}, domain.NewValidationError("EMERGENCY_DEFAULT_PRIORITY", "должен быть не меньше 1")
	}
	trusted := make([]uuid.UUID, 0, len(c.Emergency.TrustedSources))
	for _, raw := range c.Emergency.TrustedSources {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.EmergencyConfig{}, domain.NewValidationError("EMERGENCY_TRUSTED_SOURCES", "некорректный uuid "+raw)
		}
		trusted = append(trusted, id)
	}
	return domain.EmergencyConfig{
		Keywords:        trimAll(c.Emergency.Keywords),
		MinKeywordScore: c.Emergency.MinScore,
		Categories:      trimAll(c.Emergency.Categories),
		TrustedSources:  trusted,
		DefaultPriority: c.Emergency.DefaultPriority,
	}, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
