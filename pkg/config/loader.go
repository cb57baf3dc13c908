// Package config loads the balancer settings.
//
// Layers, lowest precedence first: built-in defaults, config.yaml from the
// search path, an optional .env file, and CB_-prefixed environment variables
// where "." becomes "_" (CB_POLL_TIMEOUT overrides poll.timeout). The merged
// tree is decoded into Config and validated before anything runs.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CB"

var validate = validator.New()

// SetDefaults registers every key so environment overrides work even when
// config.yaml does not mention it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "conference_balancer")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("attendance.enabled", false)
	v.SetDefault("attendance.retention_period", 14)
	v.SetDefault("statistics.servers.enabled", false)
	v.SetDefault("statistics.servers.retention_period", 7)
	v.SetDefault("statistics.meetings.enabled", false)
	v.SetDefault("statistics.meetings.retention_period", 30)

	v.SetDefault("poll.timeout", 10*time.Second)
	v.SetDefault("poll.concurrency", 4)
	v.SetDefault("poll.schedule", "@every 1m")
	v.SetDefault("cleanup.schedule", "@daily")

	v.SetDefault("log.dir", "")
	v.SetDefault("log.tee", true)
	v.SetDefault("log.debug", false)
	v.SetDefault("metrics.listen_addr", ":9090")
}

// Init prepares v: defaults, .env, env overrides and config.yaml. A missing
// config file is not an error when every value comes from defaults or env.
func Init(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	// .env is optional
	_ = godotenv.Load()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.conference-balancer")
		v.AddConfigPath("/etc/conference-balancer/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// FromViper decodes and validates the merged settings.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// SecretResolver turns a "vault:" reference into the secret it names.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

const secretPrefix = "vault:"

func IsSecretRef(value string) bool {
	return strings.HasPrefix(value, secretPrefix)
}

// ResolveSecrets replaces secret references in cfg. Without references the
// resolver is never called and may be nil.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	if !IsSecretRef(c.Database.Password) {
		return nil
	}
	if r == nil {
		return fmt.Errorf("database.password is a secret reference but no resolver is configured")
	}

	pw, err := r.Resolve(ctx, strings.TrimPrefix(c.Database.Password, secretPrefix))
	if err != nil {
		return fmt.Errorf("failed to resolve database.password: %w", err)
	}
	c.Database.Password = pw
	return nil
}
