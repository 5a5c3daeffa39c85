package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"authwidget/internal/access"
	"authwidget/internal/flow"
	"authwidget/internal/gateway"
	"authwidget/internal/ipecho"
	"authwidget/internal/renderconfig"
	"authwidget/internal/resolver"
	"authwidget/internal/tokens"
	"authwidget/internal/web"
	"authwidget/pkg/config"
	pdb "authwidget/pkg/db"
	"authwidget/pkg/httpx"
	"authwidget/pkg/logger"
	"authwidget/pkg/middleware"
	"authwidget/pkg/tenants"
)

func main() {
	fx.New(options()...).Run()
}

func options() []fx.Option {
	return []fx.Option{
		fx.WithLogger(func(log *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Desugar()}
		}),
		fx.Provide(
			config.Load,
			newLogger,
			newPool,
			newRedis,
			newTenantProvider,
			newTokenStore,
			newHTTPClient,
			newEcho,
			newAccessGate,
			newGateway,
			newMetrics,
			newDeps,
			newRegistry,
			newHTTPServer,
		),
		fx.Invoke(func(*http.Server) {}),
	}
}

func newLogger(lc fx.Lifecycle, cfg config.Config) *zap.SugaredLogger {
	log := logger.New(cfg.Env)
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		_ = log.Sync()
		return nil
	}})
	return log
}

func newPool(lc fx.Lifecycle, cfg config.Config, log *zap.SugaredLogger) (*pgxpool.Pool, error) {
	pool, err := pdb.OpenPool(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			pool.Close()
			return nil
		}})
	}
	return pool, nil
}

func newRedis(lc fx.Lifecycle, cfg config.Config, log *zap.SugaredLogger) (*redis.Client, error) {
	rdb, err := pdb.OpenRedis(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return rdb.Close() }})
	}
	return rdb, nil
}

// newTenantProvider prefers Postgres and falls back to the env seed.
func newTenantProvider(pool *pgxpool.Pool, log *zap.SugaredLogger) (tenants.Provider, error) {
	if pool == nil {
		return tenants.NewMemoryProviderFromEnv(log), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tenants.EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	if err := tenants.SeedFromEnv(ctx, pool, os.Getenv("TENANT_SEED_JSON")); err != nil {
		log.Warnw("tenant seed failed", "err", err)
	}
	return tenants.NewPostgresProvider(pool, log), nil
}

func newTokenStore(rdb *redis.Client) tokens.Store {
	if rdb == nil {
		return tokens.NewMemoryStore()
	}
	return tokens.NewRedisStore(rdb)
}

func newHTTPClient(cfg config.Config) *http.Client { return httpx.NewClient(cfg.HTTPTimeout) }

func newEcho(cfg config.Config, hc *http.Client, log *zap.SugaredLogger) (ipecho.Resolver, error) {
	return ipecho.NewClient(cfg.IPEchoURL, cfg.IPEchoField, hc, log)
}

func newAccessGate(cfg config.Config, hc *http.Client, echo ipecho.Resolver, log *zap.SugaredLogger) access.Checker {
	url := ""
	if cfg.AuthAPIURL != "" {
		url = cfg.AuthAPIURL + gateway.ReputationPath
	}
	return access.NewGate(access.Config{URL: url, AnonKey: cfg.AuthAPIAnonKey, ClientInfo: cfg.ClientInfo}, hc, echo, log)
}

func newGateway(cfg config.Config, hc *http.Client, log *zap.SugaredLogger) gateway.Submitter {
	return gateway.NewClient(gateway.Config{BaseURL: cfg.AuthAPIURL, AnonKey: cfg.AuthAPIAnonKey, ClientInfo: cfg.ClientInfo}, hc, log)
}

func newMetrics() *flow.Metrics { return flow.NewMetrics(prometheus.DefaultRegisterer) }

type depsIn struct {
	fx.In

	Cfg     config.Config
	Log     *zap.SugaredLogger
	Tenants tenants.Provider
	Access  access.Checker
	Gateway gateway.Submitter
	Echo    ipecho.Resolver
	Tokens  tokens.Store
	Metrics *flow.Metrics
}

func newDeps(in depsIn) flow.Deps {
	return flow.Deps{
		Tenants:     resolver.New(in.Tenants, in.Log),
		Access:      in.Access,
		Configs:     renderconfig.NewLoader(in.Tenants, in.Log, renderconfig.WithFailureHook(in.Metrics.LookupFailed)),
		Gateway:     in.Gateway,
		Echo:        in.Echo,
		Tokens:      in.Tokens,
		Metrics:     in.Metrics,
		Log:         in.Log,
		LoadTimeout: in.Cfg.LoadTimeout,
	}
}

func newRegistry(lc fx.Lifecycle, cfg config.Config, m *flow.Metrics) *flow.Registry {
	reg := flow.NewRegistry(cfg.SessionTTL, m)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go reg.Run(ctx, time.Minute)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			reg.Close()
			return nil
		},
	})
	return reg
}

func newHTTPServer(lc fx.Lifecycle, cfg config.Config, deps flow.Deps, reg *flow.Registry, log *zap.SugaredLogger) (*http.Server, error) {
	proxies, err := middleware.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	stopTracing := middleware.InitTracing(log)
	app := web.New(web.Options{
		DefaultAppID:     cfg.DefaultAppID,
		UseEchoIP:        cfg.UseEchoIP(),
		SecureCookie:     cfg.SecureCookie,
		DebugDoubleWrite: cfg.DebugDoubleWrite,
		TrustedProxies:   proxies,
	}, deps, reg, log, prometheus.DefaultGatherer)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Infof("widget-service listening at %s", srv.Addr)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("serve", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return multierr.Combine(srv.Shutdown(ctx), stopTracing(ctx))
		},
	})
	return srv, nil
}
