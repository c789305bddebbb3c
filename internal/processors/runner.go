package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// Runner wraps every processor invocation in one sync history record:
// created pending before any work, finalized exactly once afterwards.
type Runner struct {
	history repositories.SyncHistoryRepository
	tenants TenantLoader
	log     *zap.Logger
}

func NewRunner(history repositories.SyncHistoryRepository, tenants TenantLoader, log *zap.Logger) *Runner {
	return &Runner{history: history, tenants: tenants, log: log.Named("runner")}
}

// Run processes one event for one tenant. The returned error is the
// processing failure, if any; it is nil for success, skipped and partial
// outcomes.
func (r *Runner) Run(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings, event *models.ProviderEvent, p Processor) (record *models.SyncHistoryRecord, err error) {
	record = &models.SyncHistoryRecord{
		TenantID:        tenantID,
		EventType:       event.Type,
		ProviderEventID: event.ID,
		Status:          models.StatusPending,
		Message:         "Processing started",
	}
	if err := r.history.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create sync history: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("processor panicked",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", rec))
			err = fmt.Errorf("processor panic: %v", rec)
			r.finalize(ctx, record, nil, err)
		}
	}()

	var outcome *Outcome
	tc, err := r.tenants.Load(ctx, tenantID, settings)
	if err == nil {
		outcome, err = p.Process(ctx, tc, event)
	}
	r.finalize(ctx, record, outcome, err)

	if record.Status == models.StatusFailed {
		return record, err
	}
	return record, nil
}

// finalize classifies the result onto record and persists it.
func (r *Runner) finalize(ctx context.Context, record *models.SyncHistoryRecord, outcome *Outcome, err error) {
	Classify(record, outcome, err)

	// A cancelled request still gets its history written.
	ctx = context.WithoutCancel(ctx)
	if ferr := r.history.Finalize(ctx, record); ferr != nil {
		if errors.Is(ferr, repositories.ErrAlreadyFinalized) {
			r.log.Warn("sync history already finalized", zap.String("history_id", record.ID.String()))
			return
		}
		r.log.Error("failed to finalize sync history",
			zap.String("history_id", record.ID.String()),
			zap.Error(ferr))
		return
	}

	fields := []zap.Field{
		zap.String("tenant_id", record.TenantID.String()),
		zap.String("event_id", record.ProviderEventID),
		zap.String("event_type", string(record.EventType)),
		zap.String("status", string(record.Status)),
	}
	if record.Status == models.StatusFailed {
		r.log.Warn("event sync failed", append(fields, zap.Error(err))...)
		return
	}
	r.log.Info("event synced", fields...)
}

// Classify maps a processor result to the terminal history status.
func Classify(record *models.SyncHistoryRecord, outcome *Outcome, err error) {
	switch {
	case err == nil && outcome != nil:
		record.Status = outcome.Status
		record.Message = outcome.Message
		record.Detail = outcome.Detail
		if outcome.LedgerEntityID != "" {
			id := outcome.LedgerEntityID
			record.LedgerEntityID = &id
		}
	case err == nil:
		record.Status = models.StatusSuccess
		record.Message = "Processed"
	case errors.Is(err, syncerr.ErrDuplicate), errors.Is(err, repositories.ErrMappingExists):
		record.Status = models.StatusSkipped
		record.Message = "Already processed by a concurrent attempt"
	case syncerr.KindOf(err) == syncerr.KindPartial:
		record.Status = models.StatusPartialSuccess
		record.Message = partialMessage(err)
		record.Detail = errorDetail(err)
	default:
		record.Status = models.StatusFailed
		record.Message = err.Error()
		record.Detail = errorDetail(err)
	}
}

func partialMessage(err error) string {
	var se *syncerr.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

func errorDetail(err error) map[string]any {
	detail := map[string]any{"error": err.Error()}
	var se *syncerr.Error
	if errors.As(err, &se) {
		detail["kind"] = se.Kind.String()
		for k, v := range se.Detail {
			detail[k] = v
		}
	}
	return detail
}
