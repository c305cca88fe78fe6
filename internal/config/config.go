package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/RichardFellows/data-refresh/internal/model"
	"github.com/RichardFellows/data-refresh/internal/utils"
)

type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Databases DatabasesConfig   `mapstructure:"databases"`
	History   HistoryConfig     `mapstructure:"history"`
	Settings  Settings          `mapstructure:"settings"`
	Security  SecurityConfig    `mapstructure:"security"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Tables    []model.TableSpec `mapstructure:"tables"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	Host string `mapstructure:"host"`
}

// DatabaseConfig describes one SQL Server endpoint. With auth_type "windows"
// the connection uses integrated security and username/password are ignored.
type DatabaseConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	AuthType string `mapstructure:"auth_type"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Encrypt  string `mapstructure:"encrypt"`
}

type DatabasesConfig struct {
	Source DatabaseConfig `mapstructure:"source"`
	Target DatabaseConfig `mapstructure:"target"`
}

// HistoryConfig describes the optional MySQL database that keeps refresh run
// history. When disabled, runs are kept in memory only.
type HistoryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Settings struct {
	DefaultBatchSize  int           `mapstructure:"default_batch_size"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	MaxParallelTables int           `mapstructure:"max_parallel_tables"`
	DryRun            bool          `mapstructure:"dry_run"`
}

type SecurityConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTExpiration      time.Duration `mapstructure:"jwt_expiration"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	EnableAuth         bool          `mapstructure:"enable_auth"`
	EnableRateLimit    bool          `mapstructure:"enable_rate_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,127}$`)

// Load reads configuration from the given file, or from config/config.yaml
// relative to the working directory when path is empty. Database credentials
// come from the environment (SOURCE_DB_USER, SOURCE_DB_PASSWORD,
// TARGET_DB_USER, TARGET_DB_PASSWORD, HISTORY_DB_PASSWORD).
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()
	bindCredentialEnv(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && path == "" {
			// No config file, rely on defaults and environment
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.host", "0.0.0.0")

	// Database defaults
	v.SetDefault("databases.source.port", 1433)
	v.SetDefault("databases.source.auth_type", "sql")
	v.SetDefault("databases.source.encrypt", "disable")
	v.SetDefault("databases.target.port", 1433)
	v.SetDefault("databases.target.auth_type", "sql")
	v.SetDefault("databases.target.encrypt", "disable")

	// History database defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", "3306")
	v.SetDefault("history.database", "data_refresh")
	v.SetDefault("history.username", "data_refresh")

	// Engine settings defaults
	v.SetDefault("settings.default_batch_size", 10000)
	v.SetDefault("settings.connection_timeout", "30s")
	v.SetDefault("settings.command_timeout", "5m")
	v.SetDefault("settings.max_retries", 3)
	v.SetDefault("settings.max_parallel_tables", 1)
	v.SetDefault("settings.dry_run", false)

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.rate_limit_per_minute", 60)
	v.SetDefault("security.rate_limit_burst", 10)
	v.SetDefault("security.enable_auth", false)
	v.SetDefault("security.enable_rate_limit", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func bindCredentialEnv(v *viper.Viper) {
	v.BindEnv("databases.source.username", "SOURCE_DB_USER")
	v.BindEnv("databases.source.password", "SOURCE_DB_PASSWORD")
	v.BindEnv("databases.target.username", "TARGET_DB_USER")
	v.BindEnv("databases.target.password", "TARGET_DB_PASSWORD")
	v.BindEnv("history.password", "HISTORY_DB_PASSWORD")
	v.BindEnv("security.jwt_secret", "JWT_SECRET")
}

// NewValidator builds the validator instance used for config and API payloads,
// with the sqlident rule for SQL Server identifiers.
func NewValidator() *validator.Validate {
	validate := validator.New()
	validate.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return sqlIdentPattern.MatchString(fl.Field().String())
	})
	return validate
}

// Validate checks the loaded configuration and applies per-table defaults.
// It fails before any refresh runs rather than partway through one.
func (c *Config) Validate() error {
	if len(c.Tables) == 0 {
		return utils.NewConfigurationError("no tables configured")
	}
	if c.Databases.Source.Server == "" || c.Databases.Source.Database == "" {
		return utils.NewConfigurationError("source database server and database are required")
	}
	if c.Databases.Target.Server == "" || c.Databases.Target.Database == "" {
		return utils.NewConfigurationError("target database server and database are required")
	}

	validate := NewValidator()
	seen := make(map[string]bool)
	for i := range c.Tables {
		ts := &c.Tables[i]
		ts.ApplyDefaults(c.Settings.DefaultBatchSize)
		if seen[ts.Name] {
			return utils.NewConfigurationError(fmt.Sprintf("table %s configured more than once", ts.Name))
		}
		seen[ts.Name] = true
		if err := validate.Struct(ts); err != nil {
			return utils.NewErrorBuilder(utils.ErrCodeConfiguration).
				WithDetails(fmt.Sprintf("table %s: %v", ts.Name, err)).
				WithCause(err).
				Build()
		}
	}
	return nil
}

// TableSpec returns the configured spec for a table name.
func (c *Config) TableSpec(name string) (*model.TableSpec, error) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], nil
		}
	}
	return nil, utils.NewNotFoundError(fmt.Sprintf("table %q", name))
}
