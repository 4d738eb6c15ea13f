package sitecli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/sitekit/sitekit/pkg/audit"
	"github.com/sitekit/sitekit/pkg/cache"
	"github.com/sitekit/sitekit/pkg/config"
	"github.com/sitekit/sitekit/pkg/observability"
	"github.com/sitekit/sitekit/pkg/repo"
	"github.com/sitekit/sitekit/pkg/repo/sqldb"
	"github.com/sitekit/sitekit/pkg/sites"
)

// log is the command-line logger. Operational chatter goes to stderr through
// logrus; result data goes to stdout via plain prints so it stays pipeable.
var log = newCLILogger()

func newCLILogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if level, err := logrus.ParseLevel(getEnvDefault("SITEKIT_LOG_LEVEL", "warn")); err == nil {
		l.SetLevel(level)
	}
	return l
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openService builds a sites.Service from the environment configuration.
// The returned closer releases the backing store.
func openService() (*sites.Service, *config.Config, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	backend, closer, err := openBackend(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if reg, ok := backend.(sites.PermissionModelRegistrar); ok {
		sites.RegisterPermissionModel(reg)
	}
	if err := ensureWellKnownGroups(backend); err != nil {
		closer()
		return nil, nil, nil, err
	}

	svc := sites.NewFromBackend(backend, sites.Options{
		PublicAuthority: cfg.Sites.PublicAuthority,
		Cache:           openCache(cfg),
		Logger:          observability.NewLogger(cfg.Observability.LogLevel, os.Stderr),
	})

	if cfg.Observability.AuditLogDir != "" {
		trail, err := audit.NewFileLogger(audit.FileLoggerConfig{Dir: cfg.Observability.AuditLogDir})
		if err != nil {
			closer()
			return nil, nil, nil, fmt.Errorf("open audit trail: %w", err)
		}
		audit.Attach(svc.Events(), trail)
		store := closer
		closer = func() {
			trail.Close()
			store()
		}
	}
	return svc, cfg, closer, nil
}

func openBackend(cfg *config.Config) (repo.Backend, func(), error) {
	switch cfg.Storage.Type {
	case "memory":
		log.Warn("memory storage holds nothing across invocations")
		return repo.NewStore(), func() {}, nil

	case "sqlite":
		db, err := sqldb.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqldb.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		store, err := sqldb.New(db, sqldb.DialectSQLite, observability.NewNopLogger())
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.WithField("path", cfg.Storage.SQLitePath).Debug("opened sqlite store")
		return store, func() { db.Close() }, nil

	case "postgres":
		db, err := sqldb.OpenPostgres(cfg.Storage.PostgresURL, cfg.Storage.MaxOpenConns, cfg.Storage.MaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := sqldb.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		store, err := sqldb.New(db, sqldb.DialectPostgres, observability.NewNopLogger())
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Debug("opened postgres store")
		return store, func() { db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
}

func openCache(cfg *config.Config) cache.SiteCache {
	if cfg.Cache.Type == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		return cache.NewRedis(client, cfg.Cache.RedisTTL)
	}
	return cache.NewLRU(cfg.Cache.LRUSize)
}

// ensureWellKnownGroups creates the everyone and administrators groups if the
// store does not have them yet.
func ensureWellKnownGroups(backend repo.Backend) error {
	ctx := repo.AsSystem(context.Background())
	for name, display := range map[string]string{
		repo.EveryoneAuthority:   "Everyone",
		repo.AdministratorsGroup: "Site Administrators",
	} {
		if err := backend.CreateGroup(ctx, name, display); err != nil && !errors.Is(err, repo.ErrAlreadyExists) {
			return fmt.Errorf("ensure group %s: %w", name, err)
		}
	}
	return nil
}

// callerContext builds the acting-user context for a command invocation.
func callerContext(user string) (context.Context, error) {
	if user == "" {
		return nil, fmt.Errorf("missing -as <user>: every command acts on behalf of a user")
	}
	return repo.WithCaller(context.Background(), user), nil
}
