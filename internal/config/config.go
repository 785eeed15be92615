// Package config loads and validates the server configuration from file and
// environment. Keys follow the section.key shape; every key can be overridden
// through the environment with the OAUTH2 prefix (oauth.realm becomes
// OAUTH2_OAUTH_REALM).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

// Config holds the full server configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	OAuth      OAuthConfig      `mapstructure:"oauth"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Audit      AuditConfig      `mapstructure:"audit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Demo       DemoConfig       `mapstructure:"demo"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type OAuthConfig struct {
	// AuthorizePath and AccessTokenPath are the two protocol endpoints the
	// middleware claims; every other path belongs to the host application.
	AuthorizePath   string `mapstructure:"authorize_path"`
	AccessTokenPath string `mapstructure:"access_token_path"`

	// AuthorizationTypes restricts the authorize endpoint to a subset of
	// {"code","token"}. Empty enables both.
	AuthorizationTypes []string `mapstructure:"authorization_types"`

	// Realm names the protection space in WWW-Authenticate challenges.
	// Empty falls back to the request host.
	Realm string `mapstructure:"realm"`

	// Scopes is the optional scope allow-list.
	Scopes []string `mapstructure:"scopes"`

	// RequestTTL bounds pending authorization requests and the one-shot
	// codes minted from them.
	RequestTTL time.Duration `mapstructure:"request_ttl"`

	// TokenTTL bounds access tokens. Zero mints non-expiring tokens.
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type StorageConfig struct {
	// Driver selects the backend: memory, sqlite, postgres or redis.
	Driver string `mapstructure:"driver"`

	// DSN is the sqlite path or postgres connection string.
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Mode           string        `mapstructure:"mode"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ClusterAddrs   []string      `mapstructure:"cluster_addrs"`
	SentinelAddrs  []string      `mapstructure:"sentinel_addrs"`
	SentinelMaster string        `mapstructure:"sentinel_master"`
	PoolSize       int           `mapstructure:"pool_size"`
	MinIdleConns   int           `mapstructure:"min_idle_conns"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MonitoringConfig struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
	PprofEnabled   bool `mapstructure:"pprof_enabled"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	Environment    string  `mapstructure:"environment"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type AuditConfig struct {
	// Enabled switches audit publishing to Kafka; disabled, events go to
	// the structured log instead.
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DemoConfig struct {
	// Enabled mounts the demo host application (consent page, sample
	// protected resources) and its user database.
	Enabled bool `mapstructure:"enabled"`

	// Users maps demo usernames to passwords for the built-in authenticator.
	Users map[string]string `mapstructure:"users"`
}

var validDrivers = map[string]bool{
	string(constants.StorageMemory):   true,
	string(constants.StorageSQLite):   true,
	string(constants.StoragePostgres): true,
	string(constants.StorageRedis):    true,
}

var validLogLevels = map[string]bool{
	string(constants.LogLevelDebug): true,
	string(constants.LogLevelInfo):  true,
	string(constants.LogLevelWarn):  true,
	string(constants.LogLevelError): true,
	string(constants.LogLevelFatal): true,
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside 1-65535", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode %q is not one of debug, release, test", c.Server.Mode)
	}
	if !strings.HasPrefix(c.OAuth.AuthorizePath, "/") {
		return fmt.Errorf("oauth.authorize_path %q must start with /", c.OAuth.AuthorizePath)
	}
	if !strings.HasPrefix(c.OAuth.AccessTokenPath, "/") {
		return fmt.Errorf("oauth.access_token_path %q must start with /", c.OAuth.AccessTokenPath)
	}
	if c.OAuth.AuthorizePath == c.OAuth.AccessTokenPath {
		return fmt.Errorf("oauth.authorize_path and oauth.access_token_path are both %q", c.OAuth.AuthorizePath)
	}
	for _, responseType := range c.OAuth.AuthorizationTypes {
		switch constants.ResponseType(responseType) {
		case constants.ResponseTypeCode, constants.ResponseTypeToken:
		default:
			return fmt.Errorf("oauth.authorization_types entry %q is not code or token", responseType)
		}
	}
	if c.OAuth.RequestTTL < 0 {
		return fmt.Errorf("oauth.request_ttl must not be negative")
	}
	if c.OAuth.TokenTTL < 0 {
		return fmt.Errorf("oauth.token_ttl must not be negative")
	}

	if !validDrivers[c.Storage.Driver] {
		return fmt.Errorf("storage.driver %q is not one of memory, sqlite, postgres, redis", c.Storage.Driver)
	}
	switch constants.StorageDriver(c.Storage.Driver) {
	case constants.StorageSQLite, constants.StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}

	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio %v outside 0-1", c.Tracing.SampleRatio)
	}

	if c.Audit.Enabled {
		if len(c.Audit.Brokers) == 0 {
			return fmt.Errorf("audit.brokers is required when audit publishing is enabled")
		}
		if c.Audit.Topic == "" {
			return fmt.Errorf("audit.topic is required when audit publishing is enabled")
		}
	}
	return nil
}
