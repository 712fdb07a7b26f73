package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"extensao.org/internal/accounts"
	"extensao.org/internal/activity"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/config"
	"extensao.org/internal/domain"
	"extensao.org/internal/enrollment"
	"extensao.org/internal/hours"
	"extensao.org/internal/httpapi"
	"extensao.org/internal/obs"
	"extensao.org/internal/store/memory"
	"extensao.org/internal/store/pg"
	"extensao.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what the stores provide to the workflows.
type backend interface {
	domain.Store
	audit.Store
	auth.AccountStore
	auth.GrantSource
	httpapi.Pinger
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		obs.Logger().Fatal("extensao-api failed", zap.Error(err))
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog := auth.NewCatalog(store)
	if err := catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("load permission catalog: %w", err)
	}
	var perms auth.PermissionSource = catalog
	var refresher httpapi.CatalogRefresher = catalog
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, permission cache falls back to the catalog", zap.Error(err))
		}
		cached := auth.NewCachedPermissions(catalog, rdb, cfg.Redis.TTL)
		perms, refresher = cached, cached
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret, err = devSecret()
		if err != nil {
			return err
		}
		log.Warn("auth.secret not set; using a random secret, tokens will not survive a restart")
	}
	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	hub := stream.New[audit.Entry](64)
	recorder := audit.NewRecorder(store, audit.WithPublisher(hub))
	resolver := auth.NewResolver(perms)

	api := httpapi.New(httpapi.ReadyProbe{Store: store}, httpapi.Services{
		Auth:      auth.NewService(store, issuer, recorder),
		Authz:     resolver,
		Catalog:   catalog,
		Refresher: refresher,
		Accounts: accounts.NewService(store, resolver, recorder,
			accounts.WithProgramQuota(cfg.Hours.ProgramQuota),
			accounts.WithRoles(catalog),
		),
		Activities:  activity.NewService(store, resolver, recorder),
		Enrollments: enrollment.NewService(store, resolver, recorder),
		Hours:       hours.NewService(store, resolver, recorder, hours.WithProgramQuota(cfg.Hours.EnforceProgramQuota)),
		Audit:       recorder,
		Stream:      hub,
	}, httpapi.Options{
		Version:       version,
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		RateBurst:     cfg.RateLimit.Burst,
		RatePerSecond: cfg.RateLimit.PerSecond,
		SecureCookies: !cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: /v1/audit/stream stays open
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewHealthServer(httpapi.ReadyProbe{Store: store})
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		health.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

func openStore(cfg *config.Config) (backend, func(), error) {
	if cfg.Database.DSN == "" {
		obs.Logger().Warn("database.dsn not set; using the in-memory store")
		return memory.New(), func() {}, nil
	}
	s, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		pg.WithTxTimeout(cfg.Database.TxTimeout))
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	return s, func() { _ = s.Close() }, nil
}

func devSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
