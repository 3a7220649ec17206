package domain

import "time"

// Config holds the complete AMLGuard configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure defaults
	Tier Tier `json:"tier"`

	// Component configurations
	Rules      RulesConfig      `json:"rules"`
	Scorer     ScorerConfig     `json:"scorer"`
	Stream     StreamConfig     `json:"stream"`
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// RulesConfig holds rule engine settings.
type RulesConfig struct {
	// Dir is the directory of YAML rule documents, one rule per file.
	Dir string `json:"dir"`
}

// ScorerConfig holds the external ML risk-scorer settings.
type ScorerConfig struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`

	// PredictionTTL controls caching of scorer responses; zero disables it.
	PredictionTTL time.Duration `json:"predictionTtl"`
}

// StreamConfig holds the stream coordinator settings.
type StreamConfig struct {
	// QueueCapacity bounds the ingest queue; enqueue fails fast when full.
	QueueCapacity int `json:"queueCapacity"`

	// PollTimeout is the bounded wait for a dequeue before yielding.
	PollTimeout time.Duration `json:"pollTimeout"`

	// VelocityWindow is the lookback for velocity enrichment.
	VelocityWindow time.Duration `json:"velocityWindow"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the single-node tier with SQLite + channels.
	TierCommunity Tier = "community"

	// TierPro is the tier with PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Rules: RulesConfig{
			Dir: "./configs/rules",
		},
		Scorer: ScorerConfig{
			URL:           "http://localhost:8001",
			Timeout:       30 * time.Second,
			PredictionTTL: 5 * time.Minute,
		},
		Stream: StreamConfig{
			QueueCapacity:  1000,
			PollTimeout:    time.Second,
			VelocityWindow: time.Hour,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./amlguard.db",
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "amlguard",
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "amlguard",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
