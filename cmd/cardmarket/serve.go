package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/card-market-api/internal/dto"
	"github.com/noah-isme/card-market-api/internal/handler"
	"github.com/noah-isme/card-market-api/internal/repository"
	"github.com/noah-isme/card-market-api/internal/router"
	"github.com/noah-isme/card-market-api/internal/service"
	"github.com/noah-isme/card-market-api/pkg/cache"
	"github.com/noah-isme/card-market-api/pkg/config"
	"github.com/noah-isme/card-market-api/pkg/database"
	"github.com/noah-isme/card-market-api/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logr)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Error("failed to connect to database", zap.Error(err))
		return err
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Error("failed to connect to redis", zap.Error(err))
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	limiter, err := newReportLimiter(cfg.ReportLimit, rdb)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsService()
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), service.NotificationConfig{
		Workers:    cfg.Notifications.Workers,
		Retries:    cfg.Notifications.Retries,
		BufferSize: cfg.Notifications.BufferSize,
	}, metrics, logr.Named("notifications"))
	notifications.Start(ctx)
	defer notifications.Stop()

	engine := router.New(cfg, wire(cfg, db, rdb, limiter, metrics, notifications, logr))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newReportLimiter(cfg config.ReportLimitConfig, rdb *redis.Client) (ratelimit.Limiter, error) {
	if cfg.Backend == config.RateBackendRedis {
		if rdb == nil {
			return nil, fmt.Errorf("REPORT_RATE_BACKEND=redis requires REDIS_ENABLED")
		}
		return ratelimit.NewRedis(rdb, "ratelimit:", cfg.Limit, cfg.Window, nil)
	}
	return ratelimit.NewMemory(cfg.Limit, cfg.Window, cfg.MaxKeys, nil)
}

// wire builds repositories, services and handlers on top of the shared
// connections.
func wire(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, limiter ratelimit.Limiter,
	metrics *service.MetricsService, notifications *service.NotificationService, logr *zap.Logger) router.Dependencies {
	tx := database.NewTransactor(db)
	validate := dto.NewValidator()
	opts := []service.Option{service.WithObserver(metrics), service.WithNotifier(notifications)}

	var listingCache *service.CacheService
	if rdb != nil {
		listingCache = service.NewCacheService(repository.NewCacheRepository(rdb, logr), metrics, cfg.ListingCache.TTL, logr, cfg.ListingCache.Enabled)
	}

	users := repository.NewUserRepository(db)
	listingRepo := repository.NewListingRepository(db)
	offerRepo := repository.NewTradeOfferRepository(db)
	collectionRepo := repository.NewCollectionRepository(db)
	listingEvents := repository.NewListingEventRepository(db)
	tradeEvents := repository.NewTradeEventRepository(db)

	listings := service.NewListingService(listingRepo, listingEvents, collectionRepo, tx, listingCache, validate, logr.Named("listings"), opts...)
	offers := service.NewTradeOfferService(offerRepo, listingRepo, tradeEvents, tx, service.TradeOfferConfig{
		DefaultExpiryHours: cfg.Trades.DefaultExpiryHours,
		MaxExpiryHours:     cfg.Trades.MaxExpiryHours,
		ExpiryConcurrency:  cfg.Trades.ExpiryConcurrency,
	}, validate, logr.Named("trade_offers"), opts...)
	handovers := service.NewHandoverService(repository.NewHandoverRepository(db), listingRepo, offerRepo, listingEvents, tradeEvents,
		tx, validate, logr.Named("handovers"), opts...)
	reports := service.NewReportService(repository.NewListingReportRepository(db), listingRepo, listingEvents, limiter,
		tx, validate, logr.Named("reports"), opts...)
	collection := service.NewCollectionService(collectionRepo, validate, logr.Named("collection"), opts...)

	return router.Dependencies{
		Auth: service.NewAuthService(service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			AccessTokenExpiry: cfg.JWT.Expiration,
			Issuer:            cfg.JWT.Issuer,
		}),
		Users:       users,
		Metrics:     metrics,
		Logger:      logr,
		Listings:    handler.NewListingHandler(listings),
		TradeOffers: handler.NewTradeOfferHandler(offers),
		Handovers:   handler.NewHandoverHandler(handovers),
		Reports:     handler.NewReportHandler(reports),
		Me:          handler.NewMeHandler(collection, notifications),
		Probes:      handler.NewMetricsHandler(metrics, db),
	}
}
