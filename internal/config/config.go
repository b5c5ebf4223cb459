// Package config loads and validates the rag-core configuration from file
// and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/developer-mesh/rag-core/pkg/cache"
	"github.com/developer-mesh/rag-core/pkg/history"
	"github.com/developer-mesh/rag-core/pkg/resilience"
	"github.com/developer-mesh/rag-core/pkg/retrieval"
	"github.com/developer-mesh/rag-core/pkg/vectorstore"
)

// Config holds the complete core configuration.
type Config struct {
	Cache     CacheConfig                     `mapstructure:"cache"`
	History   history.Config                  `mapstructure:"history"`
	Retrieval retrieval.Config                `mapstructure:"retrieval"`
	Breaker   resilience.CircuitBreakerConfig `mapstructure:"breaker"`
}

// CacheConfig groups the in-memory engine settings with the optional remote
// tier.
type CacheConfig struct {
	cache.Config `mapstructure:",squash"`

	// RedisEnabled switches the store to the multi-level (LRU + Redis)
	// layout instead of the purely in-process engine.
	RedisEnabled bool              `mapstructure:"redis_enabled"`
	Redis        cache.RedisConfig `mapstructure:"redis"`
	L1MaxSize    int               `mapstructure:"l1_max_size"`

	// Per-kind TTL overrides; zero means "use the default TTL".
	ChatEngineTTL     time.Duration `mapstructure:"chat_engine_ttl"`
	ModelConfigTTL    time.Duration `mapstructure:"model_config_ttl"`
	RetrieverTTL      time.Duration `mapstructure:"retriever_ttl"`
	PromptTemplateTTL time.Duration `mapstructure:"prompt_template_ttl"`
}

// VectorStoreConfig is re-exported so callers wiring the pgvector searcher
// only import this package.
type VectorStoreConfig = vectorstore.Config

// Load loads configuration from file and environment variables. The config
// file is optional; environment variables prefixed with RAG_ override it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := os.Getenv("RAG_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks every component section.
func (c *Config) Validate() error {
	if err := c.Cache.Config.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	return c.Retrieval.Validate()
}

// setDefaults mirrors the documented environment defaults.
func setDefaults(v *viper.Viper) {
	// Cache engine defaults.
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", time.Minute)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.redis_enabled", false)
	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.database", 0)
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.redis.read_timeout", 3*time.Second)
	v.SetDefault("cache.redis.write_timeout", 3*time.Second)
	v.SetDefault("cache.redis.pool_size", 10)

	// History defaults.
	v.SetDefault("history.queue_size", 10)
	v.SetDefault("history.ttl", time.Hour)

	// Retrieval defaults.
	v.SetDefault("retrieval.default_limit_k", 10)
	v.SetDefault("retrieval.default_top_k", 3)
	v.SetDefault("retrieval.default_metric", "cosine")
	v.SetDefault("retrieval.default_threshold", 0.75)
	v.SetDefault("retrieval.allowed_metrics", []string{"cosine", "dotproduct", "euclidean"})

	// Circuit breaker defaults.
	v.SetDefault("breaker.name", "vector-search")
	v.SetDefault("breaker.max_requests", 5)
	v.SetDefault("breaker.interval", 30*time.Second)
	v.SetDefault("breaker.timeout", time.Minute)
	v.SetDefault("breaker.failure_ratio", 0.5)
	v.SetDefault("breaker.min_requests", 5)
}
