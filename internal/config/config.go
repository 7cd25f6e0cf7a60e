package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Feedback string `mapstructure:"feedback"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Scoring ScoringConfig `mapstructure:"scoring"`
	Graph   GraphConfig   `mapstructure:"graph"`
	Caching CachingConfig `mapstructure:"caching"`
}

type GatewayConfig struct {
	Providers       []string      `mapstructure:"providers"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	RetryAttempts   uint          `mapstructure:"retry_attempts"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
	CandidateLimit  int           `mapstructure:"candidate_limit"`
}

type ScoringConfig struct {
	// ContributionThreshold is the minimum weighted contribution a signal
	// needs before it earns a reason string.
	ContributionThreshold float64 `mapstructure:"contribution_threshold"`
	// EraWindowDecades bounds the era proximity decay; candidates farther
	// than this many decades from every dominant era score 0 on era.
	EraWindowDecades int `mapstructure:"era_window_decades"`
	// RelatedArtistCap caps artist affinity earned purely through graph
	// reachability, so a neighbor never outranks an owned artist.
	RelatedArtistCap float64 `mapstructure:"related_artist_cap"`
}

type GraphConfig struct {
	MaxDepth          int     `mapstructure:"max_depth"`
	SimilarEdgeWeight float64 `mapstructure:"similar_edge_weight"` // default when the provider supplies no similarity
	TagEdgeWeight     float64 `mapstructure:"tag_edge_weight"`
}

type CachingConfig struct {
	RecommendationTTL time.Duration `mapstructure:"recommendation_ttl"`
	ExternalTTL       time.Duration `mapstructure:"external_ttl"`
	ResultMemoTTL     time.Duration `mapstructure:"result_memo_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	FeedbackPerWindow int           `mapstructure:"feedback_per_window"`
	Window            time.Duration `mapstructure:"window"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.topics.feedback", "feedback-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Gateway defaults. The 1 rps politeness limit matches what the
	// public music-metadata APIs ask for.
	viper.SetDefault("recommendation.gateway.providers", []string{"musicbrainz", "discogs", "lastfm"})
	viper.SetDefault("recommendation.gateway.provider_timeout", "5s")
	viper.SetDefault("recommendation.gateway.retry_attempts", 3)
	viper.SetDefault("recommendation.gateway.requests_per_sec", 1.0)
	viper.SetDefault("recommendation.gateway.burst", 1)
	viper.SetDefault("recommendation.gateway.candidate_limit", 100)

	// Scoring defaults
	viper.SetDefault("recommendation.scoring.contribution_threshold", 0.05)
	viper.SetDefault("recommendation.scoring.era_window_decades", 3)
	viper.SetDefault("recommendation.scoring.related_artist_cap", 0.7)

	// Graph defaults
	viper.SetDefault("recommendation.graph.max_depth", 2)
	viper.SetDefault("recommendation.graph.similar_edge_weight", 0.6)
	viper.SetDefault("recommendation.graph.tag_edge_weight", 0.4)

	// Caching defaults
	viper.SetDefault("recommendation.caching.recommendation_ttl", "24h")
	viper.SetDefault("recommendation.caching.external_ttl", "12h")
	viper.SetDefault("recommendation.caching.result_memo_ttl", "5m")
	viper.SetDefault("recommendation.caching.sweep_interval", "1h")

	// Rate limit defaults
	viper.SetDefault("rate_limit.feedback_per_window", 120)
	viper.SetDefault("rate_limit.window", "1m")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
