// Package redis implements the persistence contracts on Redis. Records are
// JSON documents under typed key prefixes; the atomic protocol transitions
// run as optimistic WATCH/MULTI transactions.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

// Mode selects the Redis deployment topology.
type Mode string

const (
	// ModeStandalone connects to a single Redis instance
	ModeStandalone Mode = "standalone"

	// ModeCluster connects to a Redis cluster
	ModeCluster Mode = "cluster"

	// ModeSentinel connects through Redis sentinels
	ModeSentinel Mode = "sentinel"
)

// Config holds Redis connection parameters.
type Config struct {
	Mode Mode `json:"mode" yaml:"mode" mapstructure:"mode"`

	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`

	ClusterAddrs []string `json:"cluster_addrs" yaml:"cluster_addrs" mapstructure:"cluster_addrs"`

	SentinelAddrs  []string `json:"sentinel_addrs" yaml:"sentinel_addrs" mapstructure:"sentinel_addrs"`
	SentinelMaster string   `json:"sentinel_master" yaml:"sentinel_master" mapstructure:"sentinel_master"`

	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// Connection manages the Redis client lifecycle.
type Connection struct {
	config *Config
	client redis.UniversalClient
	logger logger.Logger
}

// NewConnection creates a connection manager; call Connect before use.
func NewConnection(config *Config, log logger.Logger) *Connection {
	return &Connection{config: config, logger: log}
}

// Connect builds the client for the configured mode and verifies it with a
// ping.
func (c *Connection) Connect(ctx context.Context) error {
	c.setDefaults()

	var client redis.UniversalClient
	switch c.config.Mode {
	case ModeStandalone:
		client = redis.NewClient(&redis.Options{
			Addr:         fmt.Sprintf("%s:%d", c.config.Host, c.config.Port),
			Password:     c.config.Password,
			DB:           c.config.DB,
			PoolSize:     c.config.PoolSize,
			MinIdleConns: c.config.MinIdleConns,
			DialTimeout:  c.config.DialTimeout,
			ReadTimeout:  c.config.ReadTimeout,
			WriteTimeout: c.config.WriteTimeout,
			MaxRetries:   c.config.MaxRetries,
		})
	case ModeCluster:
		if len(c.config.ClusterAddrs) == 0 {
			return fmt.Errorf("redis cluster addresses not configured")
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        c.config.ClusterAddrs,
			Password:     c.config.Password,
			PoolSize:     c.config.PoolSize,
			MinIdleConns: c.config.MinIdleConns,
			DialTimeout:  c.config.DialTimeout,
			ReadTimeout:  c.config.ReadTimeout,
			WriteTimeout: c.config.WriteTimeout,
			MaxRetries:   c.config.MaxRetries,
		})
	case ModeSentinel:
		if len(c.config.SentinelAddrs) == 0 || c.config.SentinelMaster == "" {
			return fmt.Errorf("redis sentinel addresses or master not configured")
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    c.config.SentinelMaster,
			SentinelAddrs: c.config.SentinelAddrs,
			Password:      c.config.Password,
			DB:            c.config.DB,
			PoolSize:      c.config.PoolSize,
			MinIdleConns:  c.config.MinIdleConns,
			DialTimeout:   c.config.DialTimeout,
			ReadTimeout:   c.config.ReadTimeout,
			WriteTimeout:  c.config.WriteTimeout,
			MaxRetries:    c.config.MaxRetries,
		})
	default:
		return fmt.Errorf("unsupported redis mode: %s", c.config.Mode)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.client = client
	c.logger.Info(ctx, "redis connection established",
		logger.String("mode", string(c.config.Mode)),
		logger.Int("pool_size", c.config.PoolSize),
	)
	return nil
}

func (c *Connection) setDefaults() {
	if c.config.Mode == "" {
		c.config.Mode = ModeStandalone
	}
	if c.config.Host == "" {
		c.config.Host = "localhost"
	}
	if c.config.Port == 0 {
		c.config.Port = 6379
	}
	if c.config.PoolSize == 0 {
		c.config.PoolSize = 10
	}
	if c.config.DialTimeout == 0 {
		c.config.DialTimeout = 5 * time.Second
	}
	if c.config.ReadTimeout == 0 {
		c.config.ReadTimeout = 3 * time.Second
	}
	if c.config.WriteTimeout == 0 {
		c.config.WriteTimeout = 3 * time.Second
	}
	if c.config.MaxRetries == 0 {
		c.config.MaxRetries = 3
	}
}

// Client returns the underlying client, nil before Connect.
func (c *Connection) Client() redis.UniversalClient {
	return c.client
}

// Ping verifies connectivity.
func (c *Connection) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("redis connection not initialized")
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Connection) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
