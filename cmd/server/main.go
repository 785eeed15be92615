// The server binary runs the OAuth 2 authorization server together with the
// optional demo host application. Storage, audit publishing, tracing and the
// demo pages are all selected through configuration.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	appservice "github.com/cawinkelmann/rack-oauth2-server/internal/application/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/config"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/models"
	"github.com/cawinkelmann/rack-oauth2-server/internal/domain/repository"
	domainservice "github.com/cawinkelmann/rack-oauth2-server/internal/domain/service"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/audit"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/monitoring"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/gormstore"
	"github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/memory"
	redisstore "github.com/cawinkelmann/rack-oauth2-server/internal/infrastructure/persistence/redis"
	httpserver "github.com/cawinkelmann/rack-oauth2-server/internal/interfaces/http"
	"github.com/cawinkelmann/rack-oauth2-server/internal/interfaces/http/handlers"
	"github.com/cawinkelmann/rack-oauth2-server/internal/interfaces/http/middleware"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/constants"
	"github.com/cawinkelmann/rack-oauth2-server/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	appLog := logger.NewWithFormat(constants.LogLevel(cfg.Log.Level), cfg.Log.Format)
	logger.SetGlobalLogger(appLog)

	ctx := context.Background()

	loader.Watch(
		func(*config.Config) {
			appLog.Warn(ctx, "configuration file changed; restart to apply")
		},
		func(err error) {
			appLog.Error(ctx, "configuration file changed but is invalid", err)
		},
	)

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.Fatal(ctx, "server failed", err)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	tracing, err := monitoring.NewTracingManager(cfg.Tracing, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	health := handlers.NewHealthHandler(log)

	stores, closeStores, err := openStores(ctx, cfg, log, health)
	if err != nil {
		return err
	}

	auditSink, closeAudit, err := openAudit(cfg, log)
	if err != nil {
		return err
	}

	opts := appservice.Options{
		AuthorizationTypes: cfg.OAuth.AuthorizationTypes,
		Scopes:             cfg.OAuth.Scopes,
		RequestTTL:         cfg.OAuth.RequestTTL,
	}

	var demo *handlers.DemoHandler
	if cfg.Demo.Enabled {
		authenticate := demoAuthenticator(cfg.Demo.Users)
		opts.Authenticator = authenticate
		demo = handlers.NewDemoHandler(authenticate, stores.Tokens, log)
		if err := ensureDemoClient(ctx, stores.Clients, log); err != nil {
			return err
		}
	}

	resolver := appservice.NewClientResolver(stores.Clients, log)
	tokens := domainservice.NewTokenService(stores.Grants, stores.Tokens, cfg.OAuth.TokenTTL, log)
	authorizer := appservice.NewAuthorizer(stores.Requests, resolver, tokens, auditSink, opts, log)
	issuer := appservice.NewTokenIssuer(resolver, tokens, auditSink, opts, log)
	gate := appservice.NewResourceGate(tokens, auditSink, log)

	provider := middleware.NewProvider(
		middleware.Config{
			AuthorizePath: cfg.OAuth.AuthorizePath,
			TokenPath:     cfg.OAuth.AccessTokenPath,
			Realm:         cfg.OAuth.Realm,
		},
		authorizer, issuer, gate, metrics, log,
	)

	router := httpserver.NewRouter(cfg, log, provider, tracing.Tracer(), metrics, registry, health, demo)
	router.SetupRoutes()

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info(ctx, "shutdown signal received", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := router.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http server shutdown failed", err)
	}
	if closeAudit != nil {
		if err := closeAudit(); err != nil {
			log.Error(shutdownCtx, "audit sink close failed", err)
		}
	}
	if closeStores != nil {
		if err := closeStores(); err != nil {
			log.Error(shutdownCtx, "storage close failed", err)
		}
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStores builds the repository bundle for the configured driver and
// registers the matching readiness check. The returned closer releases the
// backing connections; it is nil for the memory driver.
func openStores(ctx context.Context, cfg *config.Config, log logger.Logger, health *handlers.HealthHandler) (repository.Stores, func() error, error) {
	switch constants.StorageDriver(cfg.Storage.Driver) {
	case constants.StorageMemory:
		log.Warn(ctx, "memory storage configured; all state is lost on restart")
		return memory.New(cfg.OAuth.RequestTTL), nil, nil

	case constants.StorageSQLite:
		db, err := gormstore.OpenSQLite(cfg.Storage.DSN)
		if err != nil {
			return repository.Stores{}, nil, err
		}
		return finishGorm(ctx, cfg, db, log, health)

	case constants.StoragePostgres:
		db, err := gormstore.OpenPostgres(cfg.Storage.DSN)
		if err != nil {
			return repository.Stores{}, nil, err
		}
		return finishGorm(ctx, cfg, db, log, health)

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
			return repository.Stores{}, nil, err
		}
		health.AddCheck("redis", conn.Ping)
		return redisstore.NewStores(conn.Client(), cfg.OAuth.RequestTTL, log), conn.Close, nil
	}

	// Validate() rejects unknown drivers before we get here.
	return repository.Stores{}, nil, nil
}

// finishGorm migrates the schema, registers the readiness check and starts
// the expiry sweeper shared by the sqlite and postgres drivers.
func finishGorm(ctx context.Context, cfg *config.Config, db *gorm.DB, log logger.Logger, health *handlers.HealthHandler) (repository.Stores, func() error, error) {
	if err := gormstore.AutoMigrate(db); err != nil {
		return repository.Stores{}, nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return repository.Stores{}, nil, err
	}
	health.AddCheck("database", sqlDB.PingContext)

	go sweepExpired(ctx, db, cfg.OAuth.RequestTTL, log)

	return gormstore.NewStores(db, cfg.OAuth.RequestTTL, log), sqlDB.Close, nil
}

// sweepExpired deletes expired authorization requests and codes on an
// interval. Reads already treat expired rows as absent, so the sweeper only
// keeps the tables from growing.
func sweepExpired(ctx context.Context, db *gorm.DB, requestTTL time.Duration, log logger.Logger) {
	interval := requestTTL
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := gormstore.PurgeExpired(ctx, db, requestTTL)
			if err != nil {
				log.Error(ctx, "expiry sweep failed", err)
				continue
			}
			if purged > 0 {
				log.Info(ctx, "expired records purged", logger.Int64("count", purged))
			}
		}
	}
}

// openAudit selects the audit sink: Kafka when publishing is enabled, the
// structured log otherwise.
func openAudit(cfg *config.Config, log logger.Logger) (domainservice.AuditService, func() error, error) {
	if !cfg.Audit.Enabled {
		return audit.NewLogSink(log), nil, nil
	}
	producer, err := audit.NewKafkaProducer(cfg.Audit, log)
	if err != nil {
		return nil, nil, err
	}
	return producer, producer.Close, nil
}

// ensureDemoClient registers a client on first start so the demo flow works
// out of the box, and logs the credentials either way.
func ensureDemoClient(ctx context.Context, clients repository.ClientRepository, log logger.Logger) error {
	existing, err := clients.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	client, err := models.NewClient("Demo Client", "http://localhost:8080/", "", "")
	if err != nil {
		return err
	}
	if err := clients.Create(ctx, client); err != nil {
		return err
	}

	log.Info(ctx, "demo client registered",
		logger.String("client_id", client.ID),
		logger.String("client_secret", client.Secret))
	return nil
}

// demoAuthenticator verifies credentials against the configured demo users.
// The username doubles as the resource identifier.
func demoAuthenticator(users map[string]string) domainservice.Authenticator {
	return func(_ context.Context, username, password string) (string, error) {
		if expected, ok := users[username]; ok && expected == password {
			return username, nil
		}
		return "", nil
	}
}
