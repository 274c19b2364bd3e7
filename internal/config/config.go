package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"carebridge/internal/ratelimit"
	dbconfig "carebridge/pkg/database"
)

// EnvPrefix is prepended to every environment override, e.g. CAREBRIDGE_HTTP_PORT
const EnvPrefix = "CAREBRIDGE"

// DefaultJWTSecret is only suitable for local development
const DefaultJWTSecret = "carebridge-development-secret-change-me"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *dbconfig.Config `yaml:"database"`
	HTTP      *HTTPConfig      `yaml:"http"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Session   *SessionConfig   `yaml:"session"`
	Auth      *AuthConfig      `yaml:"auth"`
	SMS       *SMSConfig       `yaml:"sms"`
	Logging   *LoggingConfig   `yaml:"logging"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Addr returns host:port for the listener
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// FUNCTIONAL DISCOVERY: Ping interval doubles as the liveness pass interval
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequireAuth  bool          `yaml:"require_auth"`
}

type RateLimitConfig struct {
	CleanupInterval time.Duration              `yaml:"cleanup_interval"`
	Limits          map[string]ratelimit.Limit `yaml:"limits"`
}

type SessionConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	InactiveThreshold time.Duration `yaml:"inactive_threshold"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// SMSConfig selects the gateway; without an API key messages are only logged
type SMSConfig struct {
	APIKey    string  `yaml:"api_key"`
	BaseURL   string  `yaml:"base_url"`
	SenderID  string  `yaml:"sender_id"`
	PerSecond float64 `yaml:"per_second"`
	Timezone  string  `yaml:"timezone"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults; HTTP on 8000, 30s heartbeat,
// sessions swept hourly after 24h of inactivity
func DefaultConfig() *Config {
	return &Config{
		Database: dbconfig.DefaultConfig(),
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		RateLimit: &RateLimitConfig{
			CleanupInterval: 5 * time.Minute,
			Limits:          ratelimit.DefaultLimits(),
		},
		Session: &SessionConfig{
			SweepInterval:     time.Hour,
			InactiveThreshold: 24 * time.Hour,
		},
		Auth: &AuthConfig{
			JWTSecret:  DefaultJWTSecret,
			Issuer:     "carebridge",
			TokenTTL:   time.Hour,
			BcryptCost: 12,
		},
		SMS: &SMSConfig{
			PerSecond: 1,
		},
		Logging: &LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}

	if c.RateLimit == nil {
		return errors.New("rate limit configuration is required")
	}
	if c.RateLimit.CleanupInterval <= 0 {
		return errors.New("rate limit cleanup interval must be positive")
	}
	for category, limit := range c.RateLimit.Limits {
		if limit.Requests <= 0 || limit.Window <= 0 {
			return fmt.Errorf("rate limit %q must have positive requests and window", category)
		}
	}

	if c.Session == nil {
		return errors.New("session configuration is required")
	}
	if c.Session.SweepInterval <= 0 || c.Session.InactiveThreshold <= 0 {
		return errors.New("session sweep interval and inactive threshold must be positive")
	}

	if c.Auth == nil {
		return errors.New("auth configuration is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}

	if c.SMS == nil {
		return errors.New("SMS configuration is required")
	}
	if c.SMS.PerSecond < 0 {
		return errors.New("SMS rate must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Logging == nil {
		return errors.New("logging configuration is required")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Location returns the zone reminder send times are interpreted in
func (c *Config) Location() (*time.Location, error) {
	if c.SMS == nil || c.SMS.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.SMS.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SMS timezone %q: %w", c.SMS.Timezone, err)
	}
	return loc, nil
}

// envBinding applies one environment key to the config
type envBinding struct {
	key   string
	apply func(v *viper.Viper, c *Config)
}

// FUNCTIONAL DISCOVERY: Keys mirror the YAML paths, so http.port is CAREBRIDGE_HTTP_PORT
var envBindings = []envBinding{
	{"database.path", func(v *viper.Viper, c *Config) { c.Database.DatabasePath = v.GetString("database.path") }},
	{"database.max_connections", func(v *viper.Viper, c *Config) { c.Database.MaxConnections = v.GetInt("database.max_connections") }},
	{"database.migrations_path", func(v *viper.Viper, c *Config) { c.Database.MigrationsPath = v.GetString("database.migrations_path") }},
	{"http.host", func(v *viper.Viper, c *Config) { c.HTTP.Host = v.GetString("http.host") }},
	{"http.port", func(v *viper.Viper, c *Config) { c.HTTP.Port = v.GetInt("http.port") }},
	{"http.read_timeout", func(v *viper.Viper, c *Config) { c.HTTP.ReadTimeout = v.GetDuration("http.read_timeout") }},
	{"http.write_timeout", func(v *viper.Viper, c *Config) { c.HTTP.WriteTimeout = v.GetDuration("http.write_timeout") }},
	{"http.allowed_origins", func(v *viper.Viper, c *Config) { c.HTTP.AllowedOrigins = splitList(v.GetString("http.allowed_origins")) }},
	{"websocket.ping_interval", func(v *viper.Viper, c *Config) { c.WebSocket.PingInterval = v.GetDuration("websocket.ping_interval") }},
	{"websocket.write_timeout", func(v *viper.Viper, c *Config) { c.WebSocket.WriteTimeout = v.GetDuration("websocket.write_timeout") }},
	{"websocket.require_auth", func(v *viper.Viper, c *Config) { c.WebSocket.RequireAuth = v.GetBool("websocket.require_auth") }},
	{"rate_limit.cleanup_interval", func(v *viper.Viper, c *Config) { c.RateLimit.CleanupInterval = v.GetDuration("rate_limit.cleanup_interval") }},
	{"session.sweep_interval", func(v *viper.Viper, c *Config) { c.Session.SweepInterval = v.GetDuration("session.sweep_interval") }},
	{"session.inactive_threshold", func(v *viper.Viper, c *Config) { c.Session.InactiveThreshold = v.GetDuration("session.inactive_threshold") }},
	{"auth.jwt_secret", func(v *viper.Viper, c *Config) { c.Auth.JWTSecret = v.GetString("auth.jwt_secret") }},
	{"auth.token_ttl", func(v *viper.Viper, c *Config) { c.Auth.TokenTTL = v.GetDuration("auth.token_ttl") }},
	{"auth.bcrypt_cost", func(v *viper.Viper, c *Config) { c.Auth.BcryptCost = v.GetInt("auth.bcrypt_cost") }},
	{"sms.api_key", func(v *viper.Viper, c *Config) { c.SMS.APIKey = v.GetString("sms.api_key") }},
	{"sms.base_url", func(v *viper.Viper, c *Config) { c.SMS.BaseURL = v.GetString("sms.base_url") }},
	{"sms.sender_id", func(v *viper.Viper, c *Config) { c.SMS.SenderID = v.GetString("sms.sender_id") }},
	{"sms.per_second", func(v *viper.Viper, c *Config) { c.SMS.PerSecond = v.GetFloat64("sms.per_second") }},
	{"sms.timezone", func(v *viper.Viper, c *Config) { c.SMS.Timezone = v.GetString("sms.timezone") }},
	{"logging.level", func(v *viper.Viper, c *Config) { c.Logging.Level = v.GetString("logging.level") }},
	{"logging.format", func(v *viper.Viper, c *Config) { c.Logging.Format = v.GetString("logging.format") }},
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

// applyEnv overrides every field whose CAREBRIDGE_ variable is set
func applyEnv(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, b := range envBindings {
		if v.IsSet(b.key) {
			b.apply(v, config)
		}
	}
}

// LoadFromFile reads a YAML file over the defaults and validates the result
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func mergeFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	// TECHNICAL DISCOVERY: Decoding onto the defaults keeps every key the file omits
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfigWithPrecedence resolves defaults < file < environment. An empty
// path skips the file; a missing or malformed file is an error.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if err := mergeFile(config, path); err != nil {
			return nil, err
		}
	}
	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
