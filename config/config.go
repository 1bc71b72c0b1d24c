// Package config loads the server configuration from file and environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the linking server.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogPretty   bool   `mapstructure:"log_pretty"`
	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDBName string `mapstructure:"mongo_db_name"`

	// RedisAddr switches the rate limiter to a shared Redis backend when
	// set; empty keeps the in-process counter.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// VaultSecret derives the credential encryption key. There is no
	// default: the server refuses to start without one outside dev mode.
	VaultSecret string `mapstructure:"vault_secret"`
	DevMode     bool   `mapstructure:"dev_mode"`

	PollInterval    time.Duration `mapstructure:"poll_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`

	RateLimitMax    int64         `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// ErrVaultSecretRequired is returned by Validate when no vault secret is
// configured outside dev mode.
var ErrVaultSecretRequired = errors.New("vault_secret is required; set PTLK_VAULT_SECRET or enable dev_mode for local testing")

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetConfigName("pterolink")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/pterolink/")
	viper.AddConfigPath("$HOME/.pterolink")

	// Will search for PTLK_HTTP_ADDR, PTLK_MONGO_URI etc.
	viper.SetEnvPrefix("PTLK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("http_addr", "0.0.0.0:8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_pretty", false)
	viper.SetDefault("mongo_uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo_db_name", "pterolink")
	viper.SetDefault("poll_interval", "30s")
	viper.SetDefault("cleanup_interval", "5m")
	viper.SetDefault("idle_timeout", "1h")
	viper.SetDefault("rate_limit_max", 10)
	viper.SetDefault("rate_limit_window", "1m")
	// vault_secret has no default on purpose.

	if errRead := viper.ReadInConfig(); errRead != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(errRead, &notFound) {
			return Config{}, errRead
		}
		// No config file; defaults and env vars carry the load.
	}

	if err = viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	if c.VaultSecret == "" && !c.DevMode {
		return ErrVaultSecretRequired
	}
	return nil
}

// EffectiveVaultSecret returns the configured secret, or a fixed dev-only
// value when dev mode is on and no secret is set. Stored credentials
// encrypted under the dev value are worthless outside dev, which is the
// point.
func (c Config) EffectiveVaultSecret() string {
	if c.VaultSecret == "" && c.DevMode {
		return "pterolink-dev-only-not-for-production"
	}
	return c.VaultSecret
}
