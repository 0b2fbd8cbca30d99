package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	subgin "github.com/PaulFidika/subkit/adapters/gin"
	"github.com/PaulFidika/subkit/adapters/ginutil"
	subhttp "github.com/PaulFidika/subkit/adapters/http"
	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/PaulFidika/subkit/jobs"
	jwtkit "github.com/PaulFidika/subkit/jwt"
	"github.com/PaulFidika/subkit/metrics"
	"github.com/PaulFidika/subkit/ratelimit"
	memorylimiter "github.com/PaulFidika/subkit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/subkit/ratelimit/redis"
	memorystore "github.com/PaulFidika/subkit/storage/memory"
	pgstore "github.com/PaulFidika/subkit/storage/postgres"
	redisstore "github.com/PaulFidika/subkit/storage/redis"
	"github.com/PaulFidika/subkit/storeapi"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// demoProduct is served by the memory backend.
var demoProduct = entitlements.Product{
	ID:           core.DefaultProductID,
	DisplayName:  "Standard",
	Description:  "Monthly subscription",
	DisplayPrice: "¥480",
	Period:       entitlements.Period{Unit: entitlements.PeriodMonth, Value: 1},
}

var rateLimits = ratelimit.Limits{
	ginutil.RLSubscriptionPurchase:      {Limit: 10, Window: time.Minute},
	ginutil.RLSubscriptionRefresh:       {Limit: 30, Window: time.Minute},
	ginutil.RLSubscriptionNotifications: {Limit: 120, Window: time.Minute},
}

func newServeCmd(v *viper.Viper, load func() (Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the subscription API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().String("listen", "", "listen address")
	cmd.Flags().String("backend", "", "store backend (memory or remote)")
	bindFlag(v, cmd, "listen", "listen")
	bindFlag(v, cmd, "backend", "backend")
	return cmd
}

// teardown collects what serve builds so it can be torn down in reverse.
type teardown struct {
	closers []func()
}

func (r *teardown) onClose(fn func()) { r.closers = append(r.closers, fn) }

func (r *teardown) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type storeBackend interface {
	core.Catalog
	core.EntitlementSource
	core.UpdateSource
	core.Purchaser
	core.Finisher
}

func openBackend(cfg Config, log logrus.FieldLogger) (storeBackend, error) {
	switch cfg.Backend {
	case BackendRemote:
		pemBytes, err := os.ReadFile(cfg.Store.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read store key: %w", err)
		}
		ts, err := storeapi.NewTokenSource(storeapi.KeyConfig{
			IssuerID:      cfg.Store.IssuerID,
			KeyID:         cfg.Store.KeyID,
			BundleID:      cfg.Store.BundleID,
			PrivateKeyPEM: pemBytes,
		})
		if err != nil {
			return nil, err
		}
		return storeapi.New(cfg.Store.URL, storeapi.WithTokenSource(ts), storeapi.WithLogger(log)), nil
	default:
		return memorystore.New(demoProduct), nil
	}
}

func serve(ctx context.Context, cfg Config, log *logrus.Logger) error {
	rt := &teardown{}
	defer rt.close()

	backend, err := openBackend(cfg, log)
	if err != nil {
		return err
	}
	deps := core.Deps{
		Catalog:      backend,
		Entitlements: backend,
		Updates:      backend,
		Purchaser:    backend,
	}
	if pub, ok := backend.(core.Publisher); ok {
		deps.Publisher = pub
	}

	var (
		ledger  core.FinishLedger
		limiter ginutil.RateLimiter
		auditor core.TransactionAuditor
	)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		rt.onClose(func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		bus := redisstore.NewUpdateBus(rdb, "", log)
		deps.Publisher = bus
		deps.Updates = core.MergeUpdates(backend, bus)
		ledger = redisstore.NewFinishLedger(rdb, "", 0)
		limiter = redislimiter.New(rdb, rateLimits)
		log.Info("redis enabled: shared update bus, finish ledger and rate limits")
	} else {
		mem := memorystore.NewFinishLedger(0)
		rt.onClose(func() { _ = mem.Close() })
		ledger = mem
		lim := memorylimiter.New(rateLimits)
		rt.onClose(func() { _ = lim.Close() })
		limiter = lim
	}

	finisher := core.Finisher(core.NewOnceFinisher(backend))
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		rt.onClose(pool.Close)
		pg := pgstore.NewLedger(pool, cfg.PostgresSchema)
		auditor = pg
		if cfg.RedisURL == "" {
			ledger = pg
		}
		river, err := jobs.NewClient(pool, core.DedupFinisher{Ledger: ledger, Next: finisher, Log: log}, jobs.ClientConfig{Log: log})
		if err != nil {
			return fmt.Errorf("river client: %w", err)
		}
		if err := river.Start(ctx); err != nil {
			return fmt.Errorf("river start: %w", err)
		}
		rt.onClose(func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = river.Stop(stopCtx)
		})
		deps.Finisher = jobs.QueueFinisher{Client: river, Log: log}
		log.Info("postgres enabled: transaction audit and queued finalize")
	} else {
		deps.Finisher = core.DedupFinisher{Ledger: ledger, Next: finisher, Log: log}
	}

	opts := []core.Option{core.WithLogger(log), core.WithObserver(metrics.Observer{})}
	if auditor != nil {
		opts = append(opts, core.WithAuditor(auditor))
	}
	svc, err := core.NewService(&core.Config{ProductIDs: cfg.ProductIDs, ManageURL: cfg.ManageURL}, deps, opts...)
	if err != nil {
		return err
	}
	if _, err := svc.Refresh(ctx); err != nil {
		log.WithError(err).Warn("initial refresh failed")
	}
	svc.Start(ctx)
	rt.onClose(func() { _ = svc.Close() })

	sched, err := jobs.NewRefreshScheduler(svc, cfg.RefreshSpec, log)
	if err != nil {
		return fmt.Errorf("refresh schedule: %w", err)
	}
	sched.Start()
	rt.onClose(sched.Stop)

	keys, err := jwtkit.LoadKeySource(jwtkit.KeyConfig{Path: cfg.KeysPath, Production: cfg.Production, Log: log})
	if err != nil {
		return err
	}

	r := newRouter(svc, keys, limiter, cfg, log)
	srv := &http.Server{Addr: cfg.Listen, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Listen).Info("subkitd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(svc core.Provider, keys jwtkit.KeySource, rl ginutil.RateLimiter, cfg Config, log logrus.FieldLogger) *gin.Engine {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	subgin.Register(r, svc, &subgin.Options{
		RateLimiter:        rl,
		StatusIssuer:       &jwtkit.StatusIssuer{Keys: keys, Issuer: cfg.StatusIssuer},
		NotificationSecret: cfg.NotificationSecret,
		Log:                log,
	})
	r.GET(subhttp.JWKSPath, gin.WrapH(subhttp.JWKSHandler(keys)))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}
