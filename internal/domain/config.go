package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Pipeline configurations
	Engine   EngineConfig   `json:"engine"`
	Scoring  ScoringConfig  `json:"scoring"`
	Alerting AlertingConfig `json:"alerting"`
	Monitor  MonitorConfig  `json:"monitor"`

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

// EngineConfig holds rule engine settings.
type EngineConfig struct {
	// MaxWorkers bounds concurrent rule evaluations per transaction.
	MaxWorkers int `json:"maxWorkers"`

	// CacheEnabled toggles the rule-evaluation result cache.
	CacheEnabled bool `json:"cacheEnabled"`

	// CacheTTL is the lifetime of cached evaluation results.
	CacheTTL time.Duration `json:"cacheTtl"`

	// EvalTimeout bounds a single transaction's full evaluation.
	EvalTimeout time.Duration `json:"evalTimeout"`
}

// ScoringConfig holds scoring engine settings.
type ScoringConfig struct {
	// Algorithm is one of MAX, SUM, AVG, WEIGHTED.
	Algorithm string `json:"algorithm"`

	// MinAlertScore is the global floor below which hits are discarded.
	MinAlertScore int `json:"minAlertScore"`
}

// AlertingConfig holds alert and case generation settings.
type AlertingConfig struct {
	// Risk level cut points over the final score.
	HighRiskScore   int `json:"highRiskScore"`
	MediumRiskScore int `json:"mediumRiskScore"`

	// CasesEnabled opens a case record for first-time alert subjects.
	CasesEnabled bool `json:"casesEnabled"`
}

// Batch fault policies.
const (
	FaultPolicyMark  = "mark"  // mark faulted transactions processed
	FaultPolicyRetry = "retry" // leave faulted transactions unprocessed
)

// MonitorConfig holds transaction processor settings.
type MonitorConfig struct {
	// HistoryDays is the context lookback window for rule evaluation.
	HistoryDays int `json:"historyDays"`

	// BatchSize bounds transactions claimed per batch run.
	BatchSize int `json:"batchSize"`

	// FaultPolicy decides what happens to a transaction whose
	// evaluation faulted during a batch run: "mark" or "retry".
	FaultPolicy string `json:"faultPolicy"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
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
			SQLitePath: "./harrier.db",
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
		Engine: EngineConfig{
			MaxWorkers:   8,
			CacheEnabled: true,
			CacheTTL:     5 * time.Minute,
			EvalTimeout:  10 * time.Second,
		},
		Scoring: ScoringConfig{
			Algorithm:     ScoringMax,
			MinAlertScore: 40,
		},
		Alerting: AlertingConfig{
			HighRiskScore:   70,
			MediumRiskScore: 40,
			CasesEnabled:    true,
		},
		Monitor: MonitorConfig{
			HistoryDays: 210,
			BatchSize:   500,
			FaultPolicy: FaultPolicyMark,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
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
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
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
