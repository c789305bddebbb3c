package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

type Maintainer interface {
	RefreshTaxRates(ctx context.Context, tenantID uuid.UUID) (int, error)
	RefreshDepositAccounts(ctx context.Context, tenantID uuid.UUID) (int, error)
	SweepTokens(ctx context.Context) (services.SweepResult, error)
}

type AccountSource interface {
	ProviderAccount(ctx context.Context) (*models.ProviderAccount, error)
}

// Schedules holds standard cron expressions or descriptors such as
// "@every 1h". An empty CacheRefresh disables the cache job.
type Schedules struct {
	TokenSweep   string
	CacheRefresh string
}

type Scheduler struct {
	cron     *cron.Cron
	maint    Maintainer
	accounts AccountSource
	log      *zap.Logger
}

func New(schedules Schedules, maint Maintainer, accounts AccountSource, log *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		maint:    maint,
		accounts: accounts,
		log:      log.Named("scheduler"),
	}

	if err := s.register("token sweep", schedules.TokenSweep, s.sweepTokens); err != nil {
		return nil, err
	}
	if schedules.CacheRefresh != "" {
		if err := s.register("cache refresh", schedules.CacheRefresh, s.refreshCaches); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) register(name, spec string, job func()) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
	}
	s.cron.Schedule(schedule, cron.FuncJob(job))
	s.log.Info("registered job", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweepTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := s.maint.SweepTokens(ctx)
	if err != nil {
		s.log.Error("token sweep failed", zap.Error(err))
		return
	}
	s.log.Info("token sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed))
}

func (s *Scheduler) refreshCaches() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	account, err := s.accounts.ProviderAccount(ctx)
	if err != nil {
		s.log.Warn("skipping cache refresh", zap.Error(err))
		return
	}

	rates, err := s.maint.RefreshTaxRates(ctx, account.TenantID)
	if err != nil {
		s.log.Error("tax rate refresh failed", zap.Error(err))
	}
	deposits, err := s.maint.RefreshDepositAccounts(ctx, account.TenantID)
	if err != nil {
		s.log.Error("deposit account refresh failed", zap.Error(err))
	}
	s.log.Info("cache refresh finished", zap.Int("tax_rates", rates), zap.Int("deposit_accounts", deposits))
}
