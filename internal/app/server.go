package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/config"
	"github.com/prudhvinik1/ledgersync/internal/database"
	"github.com/prudhvinik1/ledgersync/internal/handlers"
	"github.com/prudhvinik1/ledgersync/internal/processors"
	"github.com/prudhvinik1/ledgersync/internal/queue"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/scheduler"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 2 * time.Minute
)

var Server = fx.Options(
	fx.Invoke(autoMigrate),
	Core,
	fx.Provide(
		newSink,
		newWebhookHandler,
		newOperatorHandler,
		newRouter,
		newHTTPServer,
		newScheduler,
	),
	fx.Invoke(startQueue, startScheduler, startHTTPServer),
)

func autoMigrate(cfg *config.Config, log *zap.Logger) error {
	if !cfg.AutoMigrate {
		return nil
	}
	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func newSink(cfg *config.Config, q *queue.Queue, dispatcher *processors.Dispatcher, log *zap.Logger) queue.Sink {
	if q == nil {
		log.Warn("queue disabled, dispatching webhooks inline", zap.String("mode", cfg.QueueMode))
		return queue.NewInlineSink(dispatcher, log)
	}
	return q
}

func newWebhookHandler(tenants *services.TenantService, sink queue.Sink, cfg *config.Config, log *zap.Logger) *handlers.WebhookHandler {
	if cfg.StripeWebhookSecret == "" {
		log.Warn("STRIPE_WEBHOOK_SECRET not set, webhook signatures are not verified")
	}
	return handlers.NewWebhookHandler(tenants, sink, cfg.StripeWebhookSecret, log)
}

func newOperatorHandler(
	tenants *services.TenantService,
	history repositories.SyncHistoryRepository,
	dispatcher *processors.Dispatcher,
	maint *services.Maintenance,
	q *queue.Queue,
	log *zap.Logger,
) *handlers.OperatorHandler {
	// A nil *queue.Queue must not become a non-nil interface.
	var inspector handlers.QueueInspector
	if q != nil {
		inspector = q
	}
	return handlers.NewOperatorHandler(tenants, history, dispatcher, maint, inspector, log)
}

func newRouter(webhook *handlers.WebhookHandler, operator *handlers.OperatorHandler, auth *services.OperatorAuth, log *zap.Logger) http.Handler {
	return handlers.NewRouter(webhook, operator, auth, log)
}

func newHTTPServer(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func newScheduler(cfg *config.Config, maint *services.Maintenance, tenants *services.TenantService, log *zap.Logger) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Schedules{
		TokenSweep:   cfg.TokenSweepSchedule,
		CacheRefresh: cfg.TaxRefreshSchedule,
	}, maint, tenants, log)
}

func startQueue(lc fx.Lifecycle, q *queue.Queue) {
	if q == nil {
		return
	}
	lc.Append(fx.StartStopHook(q.Start, q.Stop))
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.StartStopHook(s.Start, s.Stop))
}

func startHTTPServer(lc fx.Lifecycle, server *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			listener, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
			}
			log.Info("starting server", zap.String("addr", server.Addr))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			return server.Shutdown(ctx)
		},
	})
}
