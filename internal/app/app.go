// Package app wires the sync engine with fx. Core is shared by the server
// and the CLI; Server adds HTTP, queue workers and the scheduler.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/ledgersync/internal/config"
	"github.com/prudhvinik1/ledgersync/internal/database"
	"github.com/prudhvinik1/ledgersync/internal/logger"
	"github.com/prudhvinik1/ledgersync/internal/processors"
	"github.com/prudhvinik1/ledgersync/internal/queue"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

var Core = fx.Options(
	fx.Provide(
		config.LoadConfig,
		logger.NewLogger,
		newPostgresPool,
		newRedisClient,

		fx.Annotate(repositories.NewPostgresProviderAccountRepository, fx.As(new(repositories.ProviderAccountRepository))),
		fx.Annotate(repositories.NewPostgresSyncSettingsRepository, fx.As(new(repositories.SyncSettingsRepository))),
		fx.Annotate(repositories.NewPostgresMappingRepository, fx.As(new(repositories.MappingRepository))),
		fx.Annotate(repositories.NewPostgresSyncHistoryRepository, fx.As(new(repositories.SyncHistoryRepository))),
		fx.Annotate(repositories.NewPostgresTokenRepository, fx.As(new(repositories.TokenRepository))),
		fx.Annotate(repositories.NewPostgresTaxRateRepository, fx.As(new(repositories.TaxRateRepository))),
		fx.Annotate(repositories.NewPostgresDepositAccountRepository, fx.As(new(repositories.DepositAccountRepository))),
		fx.Annotate(repositories.NewRedisLocaleCache, fx.As(new(repositories.LocaleCache))),
		fx.Annotate(repositories.NewRedisEventClaimRepository, fx.As(new(repositories.EventClaimRepository))),

		newTokenService,
		newTenantService,
		newClientFactory,
		newResolver,
		services.NewTaxService,
		services.NewMaintenance,
		newOperatorAuth,

		newProcessors,
		newRunner,
		newDispatcher,
		newQueue,
	),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
)

func newPostgresPool(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pool.Close))
	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

func newTokenService(tokens repositories.TokenRepository, cfg *config.Config, log *zap.Logger) *services.TokenService {
	return services.NewTokenService(tokens, services.TokenServiceConfig{
		ClientID:      cfg.QBOClientID,
		ClientSecret:  cfg.QBOClientSecret,
		TokenURL:      cfg.QBOTokenURL,
		RefreshWindow: cfg.TokenRefreshWindow,
		HTTPClient:    &http.Client{Timeout: cfg.HTTPTimeout},
	}, log)
}

func newTenantService(
	accounts repositories.ProviderAccountRepository,
	settings repositories.SyncSettingsRepository,
	tokens *services.TokenService,
	cfg *config.Config,
) *services.TenantService {
	return services.NewTenantService(accounts, settings, tokens, cfg.EncryptionKey)
}

func newClientFactory(cfg *config.Config, tokens *services.TokenService, log *zap.Logger) *services.ClientFactory {
	return services.NewClientFactory(services.ClientFactoryConfig{
		StripeBaseURL:   cfg.StripeAPIBase,
		QBOBaseURL:      cfg.QBOBaseURL,
		QBOMinorVersion: cfg.QBOMinorVersion,
		Timeout:         cfg.HTTPTimeout,
	}, tokens, log)
}

func newResolver(cfg *config.Config, log *zap.Logger) *services.Resolver {
	return services.NewResolver(cfg.FallbackItemName, cfg.DefaultIncomeAccountID, log)
}

func newOperatorAuth(cfg *config.Config) *services.OperatorAuth {
	return services.NewOperatorAuth(cfg.JWTSecret, cfg.JWTExpiry)
}

func newProcessors(
	mappings repositories.MappingRepository,
	resolver *services.Resolver,
	tax *services.TaxService,
	clients *services.ClientFactory,
	log *zap.Logger,
) []processors.Processor {
	return processors.NewAll(processors.Deps{
		Mappings: mappings,
		Resolver: resolver,
		Tax:      tax,
		Clients:  clients,
		Log:      log,
	})
}

func newRunner(history repositories.SyncHistoryRepository, tenants *services.TenantService, log *zap.Logger) *processors.Runner {
	return processors.NewRunner(history, tenants, log)
}

func newDispatcher(
	tenants *services.TenantService,
	clients *services.ClientFactory,
	runner *processors.Runner,
	procs []processors.Processor,
	log *zap.Logger,
) *processors.Dispatcher {
	return processors.NewDispatcher(tenants, clients, runner, procs, log)
}

// newQueue returns nil in inline mode.
func newQueue(
	cfg *config.Config,
	client *redis.Client,
	claims repositories.EventClaimRepository,
	dispatcher *processors.Dispatcher,
	log *zap.Logger,
) *queue.Queue {
	if cfg.QueueMode == config.QueueModeInline {
		return nil
	}
	return queue.New(client, claims, queue.DispatchHandler(dispatcher), queue.Options{
		Workers:     cfg.QueueWorkers,
		MaxAttempts: cfg.QueueMaxAttempts,
		RetryBase:   cfg.QueueRetryBase,
		RetryMax:    cfg.QueueRetryMax,
	}, log)
}
