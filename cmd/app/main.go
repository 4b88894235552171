package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PerkOS-xyz/UniPerk/internal/adapters/cache"
	"github.com/PerkOS-xyz/UniPerk/internal/adapters/db/memory"
	"github.com/PerkOS-xyz/UniPerk/internal/adapters/db/postgres"
	sqliteadapter "github.com/PerkOS-xyz/UniPerk/internal/adapters/db/sqlite"
	httpadapter "github.com/PerkOS-xyz/UniPerk/internal/adapters/http"
	rpcadapter "github.com/PerkOS-xyz/UniPerk/internal/adapters/rpcjson"
	"github.com/PerkOS-xyz/UniPerk/internal/application"
	"github.com/PerkOS-xyz/UniPerk/internal/ccip"
	"github.com/PerkOS-xyz/UniPerk/internal/config"
	"github.com/PerkOS-xyz/UniPerk/internal/domain"
	"github.com/PerkOS-xyz/UniPerk/internal/observability"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "uniperk",
		Usage: "CCIP-Read gateway for uniperk.eth names and agent trading permissions",
		Commands: []*cli.Command{
			serverCommand(),
			signerCommand(),
			namesCommand(),
			policyCommand(),
			lookupCommand(),
			configCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serverCommand() *cli.Command {
	def := config.Default()
	return &cli.Command{
		Name:  "server",
		Usage: "Run the HTTP gateway and the operator JSON-RPC socket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: def.Addr, Usage: "HTTP listen address", Sources: cli.EnvVars("UNIPERK_ADDR")},
			&cli.StringFlag{Name: "rpc-socket", Value: def.RPCSocket, Usage: "JSON-RPC unix socket path", Sources: cli.EnvVars("UNIPERK_RPC_SOCKET")},
			&cli.StringFlag{Name: "parent-domain", Value: def.ParentDomain, Usage: "parent ENS name served by this gateway", Sources: cli.EnvVars("UNIPERK_PARENT_DOMAIN")},
			&cli.StringFlag{Name: "private-key", Usage: "hex secp256k1 key that signs lookup responses", Sources: cli.EnvVars("UNIPERK_PRIVATE_KEY", "PRIVATE_KEY")},
			&cli.DurationFlag{Name: "signature-ttl", Value: def.SignatureTTL, Usage: "validity window of signed responses", Sources: cli.EnvVars("UNIPERK_SIGNATURE_TTL")},
			&cli.StringFlag{Name: "store", Value: def.Store, Usage: "record store: sqlite, postgres or memory", Sources: cli.EnvVars("UNIPERK_STORE")},
			&cli.StringFlag{Name: "db-path", Value: def.DBPath, Usage: "SQLite database path", Sources: cli.EnvVars("UNIPERK_DB_PATH")},
			&cli.StringFlag{Name: "database-url", Usage: "PostgreSQL connection string", Sources: cli.EnvVars("UNIPERK_DATABASE_URL", "DATABASE_URL")},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis address for the record cache; empty disables caching", Sources: cli.EnvVars("UNIPERK_REDIS_ADDR", "REDIS_ADDR")},
			&cli.IntFlag{Name: "redis-db", Usage: "Redis logical database", Sources: cli.EnvVars("UNIPERK_REDIS_DB")},
			&cli.DurationFlag{Name: "cache-ttl", Value: def.CacheTTL, Usage: "lifetime of cached records", Sources: cli.EnvVars("UNIPERK_CACHE_TTL")},
			&cli.StringFlag{Name: "log-level", Value: def.LogLevel, Sources: cli.EnvVars("UNIPERK_LOG_LEVEL")},
			&cli.StringFlag{Name: "log-format", Value: def.LogFormat, Usage: "json or console", Sources: cli.EnvVars("UNIPERK_LOG_FORMAT")},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Config{
				Addr:         c.String("addr"),
				RPCSocket:    c.String("rpc-socket"),
				ParentDomain: c.String("parent-domain"),
				PrivateKey:   c.String("private-key"),
				SignatureTTL: c.Duration("signature-ttl"),
				Store:        c.String("store"),
				DBPath:       c.String("db-path"),
				DatabaseURL:  c.String("database-url"),
				RedisAddr:    c.String("redis-addr"),
				RedisDB:      int(c.Int("redis-db")),
				CacheTTL:     c.Duration("cache-ttl"),
				LogLevel:     c.String("log-level"),
				LogFormat:    c.String("log-format"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	signer, err := ccip.NewSigner(cfg.PrivateKey, cfg.SignatureTTL)
	if err != nil {
		return err
	}

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	metrics := observability.NewMetrics()
	service := application.NewGatewayService(repo, signer, application.ServiceConfig{
		ParentDomain: cfg.ParentDomain,
		Logger:       logger,
		Metrics:      metrics,
	})

	router := httpadapter.NewRouter(service, logger, metrics)
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.RPCSocket, service, logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info().Str("socket", cfg.RPCSocket).Msg("json-rpc listening")

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("parent", service.ParentDomain()).
			Str("signer", service.SignerAddress()).
			Str("store", cfg.Store).
			Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openRepository builds the configured store, wrapped by the Redis cache
// when one is configured. The returned func releases every connection.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (domain.NameRepository, func(), error) {
	var (
		repo    domain.NameRepository
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	storeLog := observability.Component(logger, "store")

	switch cfg.Store {
	case config.StoreSQLite:
		db, err := sqliteadapter.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		if err := sqliteadapter.RunMigrations(ctx, db, storeLog); err != nil {
			closeAll()
			return nil, nil, err
		}
		repo = sqliteadapter.NewNameRepository(db)
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool, storeLog); err != nil {
			closeAll()
			return nil, nil, err
		}
		repo = postgres.NewNameRepository(pool)
	case config.StoreMemory:
		storeLog.Warn().Msg("memory store selected; records are lost on exit")
		repo = memory.NewNameRepository()
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.RedisAddr != "" {
		backend, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		closers = append(closers, backend.Close)
		repo = cache.NewNameRepository(repo, backend, cfg.CacheTTL, observability.Component(logger, "cache"))
		storeLog.Info().Str("redis", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("record cache enabled")
	}

	return repo, closeAll, nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
