package domain

import "time"

// Config holds the complete repayplan configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Policy and outbound delivery
	Rules    RulesConfig    `json:"rules"`
	Webhook  WebhookConfig  `json:"webhook"`
	Throttle ThrottleConfig `json:"throttle"`

	// AsyncWorker enables the bus-driven assessment worker.
	AsyncWorker bool `json:"asyncWorker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// RulesConfig says where the initial rules document comes from.
// URL wins over Path; with neither, the repository's active version is used.
type RulesConfig struct {
	Path           string `json:"path"`
	URL            string `json:"url"`
	FetchTimeout   int    `json:"fetchTimeout"`   // seconds
	ResultCacheTTL int    `json:"resultCacheTtl"` // seconds
}

// WebhookConfig configures fire-and-forget delivery of completed assessments.
type WebhookConfig struct {
	URL     string `json:"url"`
	Timeout int    `json:"timeout"` // seconds
}

// ThrottleConfig limits assessment submissions per client.
type ThrottleConfig struct {
	Limit  int `json:"limit"`  // 0 disables
	Window int `json:"window"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-memory cache and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./repayplan.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Rules: RulesConfig{
			FetchTimeout:   10,
			ResultCacheTTL: 600,
		},
		Webhook: WebhookConfig{
			Timeout: 5,
		},
		Throttle: ThrottleConfig{
			Limit:  60,
			Window: 60,
		},
		AsyncWorker: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "repayplan",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}
