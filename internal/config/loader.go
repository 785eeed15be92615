package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
)

const envPrefix = "OAUTH2"

// Loader reads the configuration and can watch the file for changes.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader prepares a loader. path may be empty, in which case a config.yaml
// is searched in /etc/oauth2-server and the working directory, and missing
// files are tolerated (defaults plus environment apply).
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/oauth2-server/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load reads, unmarshals and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine when no explicit path was given: defaults
		// plus environment carry the configuration.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.unmarshal()
}

// Watch re-reads the configuration whenever the file changes and hands the
// new value to onChange. Invalid edits are reported through onError and the
// previous configuration stays in effect.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		l.mu.Lock()
		cfg, err := l.unmarshal()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load is the one-shot entry point used by the binaries.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", constants.DefaultServicePort)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", constants.DefaultShutdownTimeout)

	v.SetDefault("oauth.authorize_path", constants.DefaultAuthorizePath)
	v.SetDefault("oauth.access_token_path", constants.DefaultTokenPath)
	v.SetDefault("oauth.authorization_types", constants.DefaultAuthorizationTypes)
	v.SetDefault("oauth.realm", "")
	v.SetDefault("oauth.scopes", []string{})
	v.SetDefault("oauth.request_ttl", constants.DefaultRequestTTL)
	v.SetDefault("oauth.token_ttl", "0s")

	v.SetDefault("storage.driver", string(constants.StorageMemory))
	v.SetDefault("storage.dsn", "")

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", string(constants.LogLevelInfo))
	v.SetDefault("log.format", "json")

	v.SetDefault("monitoring.metrics_enabled", true)
	v.SetDefault("monitoring.pprof_enabled", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "oauth2-server")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.topic", "oauth2.audit")

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("demo.enabled", false)
}
