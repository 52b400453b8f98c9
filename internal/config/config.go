package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SNOW_BASE_URL
const EnvPrefix = "SNOW"

// requiredKeys must be supplied by the file or the environment; there is
// no sensible default for any of them.
var requiredKeys = []string{"username", "password", "base_url", "cache_dir", "cache_max_age"}

// Config represents the complete inventory configuration
type Config struct {
	ServiceNow ServiceNowConfig `mapstructure:",squash"`
	Cache      CacheConfig      `mapstructure:",squash"`
	Inventory  InventoryConfig  `mapstructure:"inventory"`
	Filter     FilterConfig     `mapstructure:"filter"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	NATS       NATSConfig       `mapstructure:"nats"`
}

// ServiceNowConfig describes how to reach the CMDB table API
type ServiceNowConfig struct {
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	BaseURL       string        `mapstructure:"base_url"`
	TablePath     string        `mapstructure:"table_path"`
	QueryURL      string        `mapstructure:"query_url"`
	SysparmQuery  string        `mapstructure:"sysparm_query"`
	SysparmFields string        `mapstructure:"sysparm_fields"`
	Timeout       time.Duration `mapstructure:"timeout"`
	GroupField    string        `mapstructure:"group_field"`
	NameField     string        `mapstructure:"name_field"`
}

// CacheConfig controls the on-disk inventory cache
type CacheConfig struct {
	Dir           string `mapstructure:"cache_dir"`
	MaxAgeSeconds int    `mapstructure:"cache_max_age"`
	Lock          bool   `mapstructure:"cache_lock"`
}

// MaxAge returns the configured max age as a duration
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

// InventoryConfig shapes the generated inventory
type InventoryConfig struct {
	DefaultGroup string         `mapstructure:"default_group"`
	DefaultVars  map[string]any `mapstructure:"default_vars"`
	HostVars     []string       `mapstructure:"hostvars"`
}

// FilterConfig selects which records become hosts
type FilterConfig struct {
	Match  map[string]string `mapstructure:"match"`
	Groups []string          `mapstructure:"groups"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// MetricsConfig contains the node_exporter textfile settings
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// NATSConfig contains the optional refresh notification settings
type NATSConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URLs         []string      `mapstructure:"urls"`
	Subject      string        `mapstructure:"subject"`
	Auth         AuthConfig    `mapstructure:"auth"`
	TLS          TLSConfig     `mapstructure:"tls"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// AuthConfig contains NATS authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // "creds", "token", "userpass", "none"
	CredsFile string `mapstructure:"creds_file"`
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings for the NATS connection
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ConfigError reports a missing or invalid configuration value
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration %s (env %s): %s", e.Key, EnvName(e.Key), e.Reason)
}

// EnvName returns the environment variable bound to a config key
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from the optional file at path and from SNOW_*
// environment variables, the environment taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, key := range requiredKeys {
		if !v.IsSet(key) || strings.TrimSpace(v.GetString(key)) == "" {
			return nil, &ConfigError{Key: key, Reason: "is required"}
		}
	}
	if _, err := strconv.Atoi(strings.TrimSpace(v.GetString("cache_max_age"))); err != nil {
		return nil, &ConfigError{Key: "cache_max_age", Reason: "must be a whole number of seconds"}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers every optional key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("table_path", "/now/table/cmdb_ci_server")
	v.SetDefault("query_url", "")
	v.SetDefault("sysparm_query", "")
	v.SetDefault("sysparm_fields", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("group_field", "os")
	v.SetDefault("name_field", "name")
	v.SetDefault("cache_lock", true)

	v.SetDefault("inventory.default_group", "ubuntu")
	v.SetDefault("inventory.default_vars", map[string]any{"ansible_shell_type": "csh"})
	v.SetDefault("inventory.hostvars", []string{})

	v.SetDefault("filter.match", map[string]string{})
	v.SetDefault("filter.groups", []string{})

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject", "inventory.snow.refreshed")
	v.SetDefault("nats.flush_timeout", 5*time.Second)
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.auth.creds_file", "")
	v.SetDefault("nats.auth.token", "")
	v.SetDefault("nats.auth.username", "")
	v.SetDefault("nats.auth.password", "")
	v.SetDefault("nats.tls.enabled", false)
	v.SetDefault("nats.tls.cert_file", "")
	v.SetDefault("nats.tls.key_file", "")
	v.SetDefault("nats.tls.ca_file", "")
	v.SetDefault("nats.tls.insecure_skip_verify", false)

	UpdateConfigDefaults(v)
}

// validate checks the decoded configuration for consistency
func validate(cfg *Config) error {
	sn := cfg.ServiceNow
	if sn.Username == "" {
		return &ConfigError{Key: "username", Reason: "is required"}
	}
	if sn.Password == "" {
		return &ConfigError{Key: "password", Reason: "is required"}
	}
	if err := validateURL(sn.BaseURL); err != nil {
		return &ConfigError{Key: "base_url", Reason: err.Error()}
	}
	if sn.QueryURL != "" {
		if err := validateURL(sn.QueryURL); err != nil {
			return &ConfigError{Key: "query_url", Reason: err.Error()}
		}
	}
	if sn.Timeout <= 0 {
		return &ConfigError{Key: "timeout", Reason: "must be positive"}
	}
	if sn.GroupField == "" {
		return &ConfigError{Key: "group_field", Reason: "must not be empty"}
	}
	if sn.NameField == "" {
		return &ConfigError{Key: "name_field", Reason: "must not be empty"}
	}

	if cfg.Cache.Dir == "" {
		return &ConfigError{Key: "cache_dir", Reason: "is required"}
	}
	if cfg.Cache.MaxAgeSeconds < 0 {
		return &ConfigError{Key: "cache_max_age", Reason: "must be 0 (disabled) or a positive number of seconds"}
	}

	if cfg.Inventory.DefaultGroup == "_meta" {
		return &ConfigError{Key: "inventory.default_group", Reason: "_meta is reserved"}
	}
	if cfg.Inventory.DefaultGroup != strings.ToLower(cfg.Inventory.DefaultGroup) {
		return &ConfigError{Key: "inventory.default_group", Reason: "must be lowercase"}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Textfile == "" {
		return &ConfigError{Key: "metrics.textfile", Reason: "is required when metrics are enabled"}
	}

	if cfg.NATS.Enabled {
		if err := validateNATS(&cfg.NATS); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}

// validateNATS validates the refresh notification settings
func validateNATS(cfg *NATSConfig) error {
	if len(cfg.URLs) == 0 {
		return &ConfigError{Key: "nats.urls", Reason: "at least one URL is required"}
	}
	if cfg.Subject == "" {
		return &ConfigError{Key: "nats.subject", Reason: "is required"}
	}
	if cfg.FlushTimeout <= 0 {
		return &ConfigError{Key: "nats.flush_timeout", Reason: "must be positive"}
	}

	switch cfg.Auth.Type {
	case "none":
	case "creds":
		if cfg.Auth.CredsFile == "" {
			return &ConfigError{Key: "nats.auth.creds_file", Reason: "is required for creds auth"}
		}
	case "token":
		if cfg.Auth.Token == "" {
			return &ConfigError{Key: "nats.auth.token", Reason: "is required for token auth"}
		}
	case "userpass":
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return &ConfigError{Key: "nats.auth", Reason: "username and password are required for userpass auth"}
		}
	default:
		return &ConfigError{Key: "nats.auth.type", Reason: fmt.Sprintf("invalid auth type %q", cfg.Auth.Type)}
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile == "" {
			return &ConfigError{Key: "nats.tls.key_file", Reason: "is required when cert_file is set"}
		}
		if cfg.TLS.KeyFile != "" && cfg.TLS.CertFile == "" {
			return &ConfigError{Key: "nats.tls.cert_file", Reason: "is required when key_file is set"}
		}
		for key, file := range map[string]string{
			"nats.tls.cert_file": cfg.TLS.CertFile,
			"nats.tls.key_file":  cfg.TLS.KeyFile,
			"nats.tls.ca_file":   cfg.TLS.CAFile,
		} {
			if file == "" {
				continue
			}
			if _, err := os.Stat(file); err != nil {
				return &ConfigError{Key: key, Reason: fmt.Sprintf("file not found: %s", file)}
			}
		}
	}

	return nil
}
