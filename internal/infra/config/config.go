package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/spounge-ai/auditvault/internal/crypto"
	customvalidator "github.com/spounge-ai/auditvault/pkg/validator"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Crypto   CryptoConfig   `mapstructure:"crypto"   validate:"required"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

type ServerConfig struct {
	Mode     string `mapstructure:"mode"      validate:"required,oneof=development production"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

type DatabaseConfig struct {
	URL               string        `mapstructure:"url" validate:"required"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// CryptoConfig is the startup-time key material source: base64 AES keys
// under stable kids plus the default active kid. The durable active-kid
// pointer in the database overrides ActiveKid once an operator promotes.
type CryptoConfig struct {
	ActiveKid         string             `mapstructure:"active_kid"`
	Keys              []crypto.KeyConfig `mapstructure:"keys" validate:"required,min=1,dive"`
	ActiveKidCacheTTL time.Duration      `mapstructure:"active_kid_cache_ttl"`
}

type RotationConfig struct {
	PollDelay         time.Duration `mapstructure:"poll_delay"`
	DefaultBatchSize  int           `mapstructure:"default_batch_size"  validate:"gte=0,lte=5000"`
	DefaultThrottleMs int           `mapstructure:"default_throttle_ms" validate:"gte=0,lte=10000"`
}

func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("config")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("AUDITVAULT")
	vip.AutomaticEnv()
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	vip.SetDefault("server.mode", "development")
	vip.SetDefault("server.log_level", "info")
	vip.SetDefault("crypto.active_kid_cache_ttl", "500ms")
	vip.SetDefault("rotation.poll_delay", "1s")
	vip.SetDefault("rotation.default_batch_size", 200)
	vip.SetDefault("rotation.default_throttle_ms", 25)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := customvalidator.RegisterCustomValidators(validate); err != nil {
		return nil, fmt.Errorf("failed to register custom validators: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
