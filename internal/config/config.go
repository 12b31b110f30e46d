package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Upstream  UpstreamConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type UpstreamConfig struct {
	Endpoint  string
	Timeout   time.Duration
	BatchSize int
	// Outbound request rate towards the reputation API.
	RatePerSecond float64
	Burst         int
}

type RateLimitConfig struct {
	// Quota is the number of domains a client may check per window.
	Quota int64
	// Window is the fixed quota period.
	Window time.Duration
	// MaxPerRequest caps a single call, enforced before admission.
	MaxPerRequest int
	// FailOpen admits requests when the store is unreachable.
	FailOpen bool
}

type WebhookConfig struct {
	URL           string
	FlushInterval time.Duration
	// InlineLimit is the largest result count rendered inline; anything
	// bigger ships as a CSV attachment.
	InlineLimit int
	Timeout     time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("GATEWAY")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("redis.cachettl", "1h")
	viper.SetDefault("upstream.endpoint", "https://check.skiddle.id")
	viper.SetDefault("upstream.timeout", "30s")
	viper.SetDefault("upstream.batchsize", 30)
	viper.SetDefault("upstream.ratepersecond", 5)
	viper.SetDefault("upstream.burst", 5)
	viper.SetDefault("ratelimit.quota", 1000)
	viper.SetDefault("ratelimit.window", "10m")
	viper.SetDefault("ratelimit.maxperrequest", 100)
	viper.SetDefault("ratelimit.failopen", true)
	viper.SetDefault("webhook.flushinterval", "5m")
	viper.SetDefault("webhook.inlinelimit", 5)
	viper.SetDefault("webhook.timeout", "30s")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("DISCORD_WEBHOOK_URL"); url != "" {
		cfg.Webhook.URL = url
	}

	return &cfg, nil
}
