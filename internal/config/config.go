package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from path, or from the default search paths when
// path is empty
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mail-triage/")
		v.AddConfigPath("$HOME/.mail-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values. Label-keyed triage
// tables have no viper defaults; the built-in tables apply unless overridden.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.postfix.address", "localhost")
	v.SetDefault("server.postfix.port", 10026)
	v.SetDefault("server.postfix.enabled", true)
	v.SetDefault("server.headers.folder", "X-Triage-Folder")
	v.SetDefault("server.headers.label", "X-Triage-Label")
	v.SetDefault("server.headers.confidence", "X-Triage-Confidence")
	v.SetDefault("server.headers.move", "X-Triage-Move")
	v.SetDefault("server.headers.evidence", "X-Triage-Evidence")
	v.SetDefault("server.headers.error", "X-Triage-Error")

	// IMAP defaults
	v.SetDefault("imap.address", "localhost:993")
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.poll_interval", "1m")
	v.SetDefault("imap.batch_size", 50)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.self_addresses", []string{})
	v.SetDefault("imap.apply_tags", true)
	v.SetDefault("imap.move", true)

	// Triage defaults
	v.SetDefault("triage.tag_prefix", "Triage")
	v.SetDefault("triage.closeness_delta", 0.05)
	v.SetDefault("triage.default_priority", 0)
	v.SetDefault("triage.default_folder", "Other")
	v.SetDefault("triage.transactional_domains", []string{})

	// Extraction defaults
	v.SetDefault("extract.max_body_size", 4096)
	v.SetDefault("extract.max_links", 100)

	// Checkpoint defaults
	v.SetDefault("checkpoint.type", "memory")
	v.SetDefault("checkpoint.ttl", "720h")
	v.SetDefault("checkpoint.cleanup_frequency", "1h")
	v.SetDefault("checkpoint.sqlite_path", "/data/mail_triage.db")
	v.SetDefault("checkpoint.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage")

	// HTTP defaults
	v.SetDefault("http.enabled", false)
	v.SetDefault("http.listen_address", "127.0.0.1:8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Set overrides a configuration value
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// IsSet reports whether a key has a value, from any source
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMap gets a map value from the configuration
func (c *Config) GetStringMap(key string) map[string]interface{} {
	return c.v.GetStringMap(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
