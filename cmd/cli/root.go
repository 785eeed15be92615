// Package cli implements the oauth2-admin command tree: client registration
// and revocation, token inspection and revocation, all performed directly
// against the server's storage.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cawinkelmann/rack-oauth2-server/internal/config"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/gormstore"
	redisstore "github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/redis"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oauth2-admin",
	Short: "Administer the OAuth 2 authorization server",
	Long: `oauth2-admin manages the authorization server's registered clients and
issued tokens. It works directly against the storage configured for the
server, so it needs the same configuration file (or environment).`,
	SilenceUsage: true,
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the configuration file")
}

// withStores loads the configuration, opens the configured storage and hands
// the repositories to fn. The memory driver is rejected: it holds no state
// outside the server process.
func withStores(fn func(ctx context.Context, stores repository.Stores) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	log := logger.NewWithFormat(constants.LogLevelError, "console")

	switch constants.StorageDriver(cfg.Storage.Driver) {
	case constants.StorageMemory:
		return fmt.Errorf("the memory driver keeps state inside the server process; point the admin tool at sqlite, postgres or redis storage")

	case constants.StorageSQLite, constants.StoragePostgres:
		var db *gorm.DB
		if constants.StorageDriver(cfg.Storage.Driver) == constants.StorageSQLite {
			db, err = gormstore.OpenSQLite(cfg.Storage.DSN)
		} else {
			db, err = gormstore.OpenPostgres(cfg.Storage.DSN)
		}
		if err != nil {
			return err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return fn(ctx, gormstore.NewStores(db, cfg.OAuth.RequestTTL, log))

	case constants.StorageRedis:
		conn := redisstore.NewConnection(&redisstore.Config{
			Mode:           redisstore.Mode(cfg.Redis.Mode),
			Host:           cfg.Redis.Host,
			Port:           cfg.Redis.Port,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			ClusterAddrs:   cfg.Redis.ClusterAddrs,
			SentinelAddrs:  cfg.Redis.SentinelAddrs,
			SentinelMaster: cfg.Redis.SentinelMaster,
			PoolSize:       cfg.Redis.PoolSize,
			MinIdleConns:   cfg.Redis.MinIdleConns,
			DialTimeout:    cfg.Redis.DialTimeout,
			ReadTimeout:    cfg.Redis.ReadTimeout,
			WriteTimeout:   cfg.Redis.WriteTimeout,
			MaxRetries:     cfg.Redis.MaxRetries,
		}, log)
		if err := conn.Connect(ctx); err != nil {
			return err
		}
		defer conn.Close()
		return fn(ctx, redisstore.NewStores(conn.Client(), cfg.OAuth.RequestTTL, log))
	}

	return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
