// Package config loads Kestrel configuration from defaults, an optional file and
// KESTREL_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. KESTREL_SERVER_PORT.
const EnvPrefix = "KESTREL"

// Load reads configuration from file and environment variables.
// An empty configPath means defaults plus environment only.
func Load(configPath string) (*domain.Config, error) {
	v := viper.New()
	setDefaults(v, domain.DefaultConfig())

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no component can run with.
func Validate(cfg *domain.Config) error {
	switch cfg.Data.Source {
	case domain.SourceFile, domain.SourceHTTP, domain.SourceRepository:
	default:
		return fmt.Errorf("unsupported data source: %q", cfg.Data.Source)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *domain.Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("data.source", d.Data.Source)
	v.SetDefault("data.transactions_path", d.Data.TransactionsPath)
	v.SetDefault("data.rules_path", d.Data.RulesPath)
	v.SetDefault("data.transactions_url", d.Data.TransactionsURL)
	v.SetDefault("data.rules_url", d.Data.RulesURL)
	v.SetDefault("data.http_timeout", d.Data.HTTPTimeout)

	v.SetDefault("repository.driver", d.Repository.Driver)
	v.SetDefault("repository.sqlite_path", d.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", "localhost")
	v.SetDefault("repository.postgres_port", 5432)
	v.SetDefault("repository.postgres_user", "")
	v.SetDefault("repository.postgres_password", "")
	v.SetDefault("repository.postgres_db", "kestrel")
	v.SetDefault("repository.postgres_sslmode", "disable")
	v.SetDefault("repository.max_open_conns", 0)
	v.SetDefault("repository.max_idle_conns", 0)
	v.SetDefault("repository.conn_max_lifetime", "0s")

	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.local_max_size", d.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", d.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.two_phase", true)
	v.SetDefault("cache.evaluation_ttl", d.Cache.EvaluationTTL)

	v.SetDefault("eventbus.type", d.EventBus.Type)
	v.SetDefault("eventbus.channel_buffer_size", d.EventBus.ChannelBufferSize)
	v.SetDefault("eventbus.nats_url", "nats://localhost:4222")
	v.SetDefault("eventbus.nats_token", "")
	v.SetDefault("eventbus.nats_max_reconnects", 10)
	v.SetDefault("eventbus.nats_reconnect_wait", 5)

	v.SetDefault("pipeline.default_page_size", d.Pipeline.DefaultPageSize)
	v.SetDefault("pipeline.timezone", d.Pipeline.Timezone)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
