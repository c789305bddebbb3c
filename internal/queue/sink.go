package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// Sink accepts verified webhook events for processing.
type Sink interface {
	Submit(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) (*models.SyncHistoryRecord, error)
}

// Handler runs one dequeued job. A retryable error (see syncerr.Retryable)
// schedules another attempt.
type Handler func(ctx context.Context, job *Job) error

// DispatchHandler decodes the job's raw event and dispatches it.
func DispatchHandler(d Dispatcher) Handler {
	return func(ctx context.Context, job *Job) error {
		event, err := models.ParseEvent(job.Payload, job.EnqueuedAt)
		if err != nil {
			return syncerr.Validation("job %s carries an unreadable event: %v", job.ID, err)
		}
		_, err = d.Dispatch(ctx, job.TenantID, event)
		return err
	}
}

// InlineSink dispatches inside the webhook request.
type InlineSink struct {
	dispatcher Dispatcher
	log        *zap.Logger
}

func NewInlineSink(d Dispatcher, log *zap.Logger) *InlineSink {
	return &InlineSink{dispatcher: d, log: log.Named("inline")}
}

var _ Sink = (*InlineSink)(nil)

// Submit reports only failures that left no sync history behind; anything
// else is already recorded and must not make the provider redeliver.
func (s *InlineSink) Submit(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) error {
	record, err := s.dispatcher.Dispatch(ctx, tenantID, event)
	if err == nil {
		return nil
	}
	if record == nil {
		return err
	}
	s.log.Warn("event processed with failure",
		zap.String("event_id", event.ID),
		zap.String("history_id", record.ID.String()),
		zap.Error(err))
	return nil
}
