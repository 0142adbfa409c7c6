package settings

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BRAINSTORM_SERVER_ADDRESS
const EnvPrefix = "BRAINSTORM"

// Server modes, matching gin's
const (
	ModeDebug   = "debug"
	ModeRelease = "release"
	ModeTest    = "test"
)

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Config string `mapstructure:"config"` // Path of the logging YAML document
}

type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AdminConfig struct {
	APIKeys []string `mapstructure:"api_keys"` // "name:secret" or bare secrets
}

// Settings is the application configuration
type Settings struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Health   HealthConfig   `mapstructure:"health"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", ModeRelease)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.dsn", "brainstorm.db")
	v.SetDefault("logging.config", "config/logging.yaml")
	v.SetDefault("health.interval", "30s")
	v.SetDefault("health.timeout", "10s")
	v.SetDefault("admin.api_keys", []string{})
}

// Load reads settings from path, or from settings.yaml in ./config or the
// working directory when path is empty. A missing default file is not an
// error; environment variables override file values.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		log.Printf("[SETTINGS] No settings file found, using defaults and %s_* environment", EnvPrefix)
	} else {
		log.Printf("[SETTINGS] Loaded %s", v.ConfigFileUsed())
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// Validate validates the Settings
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Server),
		validation.Field(&s.Database),
		validation.Field(&s.Logging),
		validation.Field(&s.Health),
		validation.Field(&s.Admin),
	)
}

// Validate validates the ServerConfig
func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Address, validation.Required, validation.By(validateHostPort)),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeDebug, ModeRelease, ModeTest)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0)).Error("must not be negative")),
	)
}

// Validate validates the DatabaseConfig
func (c DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.DSN, validation.Required),
	)
}

// Validate validates the LoggingConfig
func (c LoggingConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Config, validation.Required),
	)
}

// Validate validates the HealthConfig
func (c HealthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0)).Error("must not be negative")),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0)).Error("must not be negative")),
	)
}

// Validate validates the AdminConfig
func (c AdminConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKeys, validation.Each(validation.Required, validation.Length(8, 0).Error("must be at least 8 characters"))),
	)
}

func validateHostPort(value interface{}) error {
	addr, _ := value.(string)
	if _, port, err := net.SplitHostPort(addr); err != nil || port == "" {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	return nil
}
