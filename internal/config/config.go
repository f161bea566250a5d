package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides (HUED_HTTP_PORT, ...).
const EnvPrefix = "HUED"

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Poll            PollConfig     `yaml:"poll"`
	Store           StoreConfig    `yaml:"store"`
	Database        DatabaseConfig `yaml:"database"`
	HTTP            HTTPConfig     `yaml:"http"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout" split_words:"true"`
}

// HueConfig contains bridge client settings. The bridge address and
// credential are not configured here: they live in the settings store and
// are written by pairing.
type HueConfig struct {
	AppName          string   `yaml:"app_name" split_words:"true"`
	Vendor           string   `yaml:"vendor"`
	Timeout          Duration `yaml:"timeout"` // HTTP timeout for bridge requests
	DiscoveryTimeout Duration `yaml:"discovery_timeout" split_words:"true"`
	RateLimitRPS     float64  `yaml:"rate_limit_rps" split_words:"true"`
}

// PollConfig controls the reconciliation loop cadence
type PollConfig struct {
	Interval        Duration `yaml:"interval"`
	SettingsBackoff Duration `yaml:"settings_backoff" split_words:"true"` // Wait between settings checks while unpaired
}

// StoreConfig selects and configures the data store client
type StoreConfig struct {
	Backend     string       `yaml:"backend"` // mqtt | memory
	CallTimeout Duration     `yaml:"call_timeout" split_words:"true"`
	MQTT        MQTTConfig   `yaml:"mqtt"`
	Influx      InfluxConfig `yaml:"influx"`
}

// MQTTConfig contains broker connection settings
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id" split_words:"true"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
	QoS      int    `yaml:"qos"`
}

// InfluxConfig contains settings for the optional time-series archive
type InfluxConfig struct {
	Enabled       bool     `yaml:"enabled"`
	URL           string   `yaml:"url"`
	Token         string   `yaml:"token"`
	Org           string   `yaml:"org"`
	Bucket        string   `yaml:"bucket"`
	BatchSize     int      `yaml:"batch_size" split_words:"true"`
	FlushInterval Duration `yaml:"flush_interval" split_words:"true"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig contains the status/pairing server settings
type HTTPConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	TLSCert               string `yaml:"tls_cert" split_words:"true"`
	TLSKey                string `yaml:"tls_key" split_words:"true"`
	PairRequestsPerMinute int    `yaml:"pair_requests_per_minute" split_words:"true"`
}

// Addr returns the listen address
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSEnabled reports whether both certificate and key are configured
func (c HTTPConfig) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupSchedule string `yaml:"cleanup_schedule" split_words:"true"` // cron expression
	RetentionDays   int    `yaml:"retention_days" split_words:"true"`
}

// Retention returns the retention window as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// Decode implements envconfig.Decoder for Duration
func (d *Duration) Decode(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file, applies environment
// overrides and fills in defaults. A missing file is not an error: the
// driver can run from defaults and environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hued.sqlite"
	}

	// Hue defaults
	if cfg.Hue.AppName == "" {
		cfg.Hue.AppName = "databox-driver-phillipshue"
	}
	if cfg.Hue.Vendor == "" {
		cfg.Hue.Vendor = "Philips Hue"
	}
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.DiscoveryTimeout == 0 {
		cfg.Hue.DiscoveryTimeout = Duration(3 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0
	}

	// Poll defaults
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(1 * time.Second)
	}
	if cfg.Poll.SettingsBackoff == 0 {
		cfg.Poll.SettingsBackoff = Duration(5 * time.Second)
	}

	// Store defaults
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "mqtt"
	}
	if cfg.Store.CallTimeout == 0 {
		cfg.Store.CallTimeout = Duration(5 * time.Second)
	}
	if cfg.Store.MQTT.Broker == "" {
		cfg.Store.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.Store.MQTT.Prefix == "" {
		cfg.Store.MQTT.Prefix = "databox/hue"
	}
	if cfg.Store.Influx.Bucket == "" {
		cfg.Store.Influx.Bucket = "hue"
	}
	if cfg.Store.Influx.BatchSize == 0 {
		cfg.Store.Influx.BatchSize = 100
	}
	if cfg.Store.Influx.FlushInterval == 0 {
		cfg.Store.Influx.FlushInterval = Duration(10 * time.Second)
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.PairRequestsPerMinute == 0 {
		cfg.HTTP.PairRequestsPerMinute = 10
	}

	// Ledger defaults
	if cfg.Ledger.CleanupSchedule == "" {
		cfg.Ledger.CleanupSchedule = "0 3 * * *"
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "mqtt", "memory":
	default:
		return fmt.Errorf("unknown store backend %q (want mqtt or memory)", c.Store.Backend)
	}
	if c.Store.MQTT.QoS < 0 || c.Store.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", c.Store.MQTT.QoS)
	}
	if c.Store.Influx.Enabled && (c.Store.Influx.URL == "" || c.Store.Influx.Org == "") {
		return fmt.Errorf("influx is enabled but url or org is empty")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		return fmt.Errorf("http.tls_cert and http.tls_key must be set together")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := strings.TrimSpace(parts[1])
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
