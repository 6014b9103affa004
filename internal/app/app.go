// Package app assembles the payment service from configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/seatpay/backend/internal/collaborators"
	"github.com/seatpay/backend/internal/config"
	"github.com/seatpay/backend/internal/database"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/providers/mtn"
	"github.com/seatpay/backend/internal/providers/orange"
	"github.com/seatpay/backend/internal/providers/pawapay"
	"github.com/seatpay/backend/internal/queue"
	"github.com/seatpay/backend/internal/services/payment"
	"github.com/seatpay/backend/internal/store"
	"github.com/seatpay/backend/internal/store/memstore"
	"github.com/seatpay/backend/internal/tokencache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds the long-lived dependencies of a running process
type App struct {
	Config  *config.Config
	Service *payment.Service
	Store   store.Store
	Effects *queue.Pool

	db     *gorm.DB
	redis  *redis.Client
	logger *zap.Logger
}

// New connects the store and redis, builds the enabled adapters and starts the side-effect pool
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using the in-memory store, transactions are lost on restart")
		a.Store = memstore.New()
	default:
		db, err := database.InitDB(cfg.Database, cfg.Environment, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Store = store.NewGormStore(db)
	}

	var tokens tokencache.Cache = tokencache.NewMemoryCache()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		tokens = tokencache.NewRedisCache(a.redis)
	}

	a.Effects = queue.NewPool(queue.Options{
		Workers:    cfg.SideEffects.Workers,
		QueueSize:  cfg.SideEffects.QueueSize,
		MaxRetries: cfg.SideEffects.MaxRetries,
		Timeout:    cfg.SideEffects.Timeout,
	}, logger)
	a.Effects.Start()

	bookings := collaborators.NewBookingClient(collaborators.Options{
		BaseURL: cfg.Collaborators.BookingURL,
		APIKey:  cfg.Collaborators.APIKey,
		Timeout: cfg.Collaborators.Timeout,
	})
	notifier := collaborators.NewNotificationClient(collaborators.Options{
		BaseURL: cfg.Collaborators.NotificationURL,
		APIKey:  cfg.Collaborators.APIKey,
		Timeout: cfg.Collaborators.Timeout,
	})

	a.Service = payment.NewService(a.Store, bookings, bookings, notifier, a.Effects, payment.Options{
		StaleAfter:  cfg.Reconcile.StaleAfter,
		FailAfter:   cfg.Reconcile.FailAfter,
		BatchSize:   cfg.Reconcile.BatchSize,
		Parallelism: cfg.Reconcile.Parallelism,
		LockTTL:     cfg.Reconcile.Interval,
	}, logger)
	if a.redis != nil {
		a.Service.SetLocker(payment.NewRedisLocker(a.redis))
	}

	for _, adapter := range Adapters(cfg, tokens, logger) {
		if err := adapter.ValidateConfig(); err != nil {
			// Registered anyway: callbacks still need parsing and Reconcile reports the gap
			logger.Warn("provider misconfigured", zap.String("provider", string(adapter.Name())), zap.Error(err))
		}
		a.Service.RegisterProvider(adapter)
	}

	return a, nil
}

// Adapters builds an adapter for every provider enabled in PROVIDERS
func Adapters(cfg *config.Config, tokens tokencache.Cache, logger *zap.Logger) []providers.Adapter {
	httpOpts := providers.HTTPOptions{
		Timeout:    cfg.ProviderHTTP.Timeout,
		RetryCount: cfg.ProviderHTTP.RetryCount,
	}

	var adapters []providers.Adapter
	if cfg.ProviderEnabled("mtn") {
		adapters = append(adapters, mtn.NewClient(mtn.Config{
			BaseURL:                     cfg.MTN.BaseURL,
			TargetEnvironment:           cfg.MTN.TargetEnvironment,
			CollectionSubscriptionKey:   cfg.MTN.CollectionSubscriptionKey,
			CollectionAPIUser:           cfg.MTN.CollectionAPIUser,
			CollectionAPIKey:            cfg.MTN.CollectionAPIKey,
			DisbursementSubscriptionKey: cfg.MTN.DisbursementSubscriptionKey,
			DisbursementAPIUser:         cfg.MTN.DisbursementAPIUser,
			DisbursementAPIKey:          cfg.MTN.DisbursementAPIKey,
			CallbackURL:                 cfg.MTN.CallbackURL,
			HTTP:                        httpOpts,
		}, tokens, logger))
	}
	if cfg.ProviderEnabled("orange") {
		adapters = append(adapters, orange.NewClient(orange.Config{
			BaseURL:           cfg.Orange.BaseURL,
			TokenURL:          cfg.Orange.TokenURL,
			ClientID:          cfg.Orange.ClientID,
			ClientSecret:      cfg.Orange.ClientSecret,
			AuthToken:         cfg.Orange.AuthToken,
			ChannelUserMSISDN: cfg.Orange.ChannelUserMSISDN,
			PIN:               cfg.Orange.PIN,
			NotifyURL:         cfg.Orange.NotifyURL,
			HTTP:              httpOpts,
		}, logger))
	}
	if cfg.ProviderEnabled("pawapay") {
		adapters = append(adapters, pawapay.NewClient(pawapay.Config{
			BaseURL:              cfg.PawaPay.BaseURL,
			APIToken:             cfg.PawaPay.APIToken,
			DefaultCorrespondent: cfg.PawaPay.DefaultCorrespondent,
			HTTP:                 httpOpts,
		}, logger))
	}
	return adapters
}

// Close stops the side-effect pool, then releases redis and the database
func (a *App) Close() {
	if a.Effects != nil {
		a.Effects.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("error closing database", zap.Error(err))
		}
	}
}
