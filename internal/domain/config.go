package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Where the transaction feed and rule catalog come from
	Data DataConfig `mapstructure:"data"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds

	// CORSOrigins lists browser origins allowed to call the API. Empty allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Data source kinds.
const (
	SourceFile       = "file"
	SourceHTTP       = "http"
	SourceRepository = "repository"
)

// DataConfig selects the feeds a session loads.
type DataConfig struct {
	// Source is "file", "http" or "repository"
	Source string `mapstructure:"source"`

	TransactionsPath string `mapstructure:"transactions_path"`
	RulesPath        string `mapstructure:"rules_path"`

	TransactionsURL string        `mapstructure:"transactions_url"`
	RulesURL        string        `mapstructure:"rules_url"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// PipelineConfig tunes the filter pipeline and paginator.
type PipelineConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`

	// Timezone is an IANA zone used to derive calendar dates for the date filter.
	// Empty means the date as written in the timestamp.
	Timezone string `mapstructure:"timezone"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// DefaultConfig returns the default single-node configuration:
// local JSON files, SQLite, in-memory cache and channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			CORSOrigins:  []string{"*"},
		},
		Data: DataConfig{
			Source:           SourceFile,
			TransactionsPath: "./data/transactions.json",
			RulesPath:        "./data/example_rules.json",
			HTTPTimeout:      15 * time.Second,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:          "memory",
			LocalMaxSize:  50000,
			LocalTTL:      5 * time.Minute,
			EvaluationTTL: 30 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Pipeline: PipelineConfig{
			DefaultPageSize: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
