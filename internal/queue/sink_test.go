package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDispatcher struct {
	calls  []*models.ProviderEvent
	record *models.SyncHistoryRecord
	err    error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) (*models.SyncHistoryRecord, error) {
	s.calls = append(s.calls, event)
	return s.record, s.err
}

const productEvent = `{"id":"evt_1","type":"product.created","data":{"object":{"id":"prod_1","name":"Widget"}}}`

func TestBackoff(t *testing.T) {
	base, max := 30*time.Second, 30*time.Minute
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{6, 16 * time.Minute},
		{7, 30 * time.Minute},
		{50, 30 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempt, base, max), "attempt %d", tt.attempt)
	}
	assert.Equal(t, 4*time.Second, Backoff(3, time.Second, 0))
}

func TestDispatchHandler(t *testing.T) {
	// ARRANGE
	d := &stubDispatcher{}
	handler := DispatchHandler(d)
	job := &Job{ID: "job-1", TenantID: uuid.New(), Payload: []byte(productEvent), EnqueuedAt: time.Now()}

	// ACT
	err := handler(context.Background(), job)

	// ASSERT
	require.NoError(t, err)
	require.Len(t, d.calls, 1)
	assert.Equal(t, models.EventProductCreated, d.calls[0].Type)
	assert.Equal(t, "evt_1", d.calls[0].ID)
}

func TestDispatchHandler_UnreadablePayloadNotRetried(t *testing.T) {
	// ARRANGE
	d := &stubDispatcher{}
	job := &Job{ID: "job-2", Payload: []byte(`{"type":"product.created"}`)}

	// ACT
	err := DispatchHandler(d)(context.Background(), job)

	// ASSERT
	require.Error(t, err)
	assert.False(t, syncerr.Retryable(err))
	assert.Empty(t, d.calls)
}

func TestDispatchHandler_PropagatesUpstreamFailure(t *testing.T) {
	// ARRANGE
	d := &stubDispatcher{
		record: &models.SyncHistoryRecord{Status: models.StatusFailed},
		err:    syncerr.Upstream(errors.New("503"), "failed to create invoice in QuickBooks"),
	}

	// ACT
	err := DispatchHandler(d)(context.Background(), &Job{Payload: []byte(productEvent)})

	// ASSERT
	assert.True(t, syncerr.Retryable(err))
}

func TestInlineSink(t *testing.T) {
	event, err := models.ParseEvent([]byte(productEvent), time.Now())
	require.NoError(t, err)

	t.Run("recorded failure is swallowed", func(t *testing.T) {
		// ARRANGE
		d := &stubDispatcher{record: &models.SyncHistoryRecord{ID: uuid.New()}, err: errors.New("boom")}
		sink := NewInlineSink(d, zap.NewNop())

		// ACT
		submitErr := sink.Submit(context.Background(), uuid.New(), event)

		// ASSERT
		assert.NoError(t, submitErr)
		assert.Len(t, d.calls, 1)
	})

	t.Run("unrecorded failure is returned", func(t *testing.T) {
		// ARRANGE
		d := &stubDispatcher{err: errors.New("settings unavailable")}
		sink := NewInlineSink(d, zap.NewNop())

		// ACT
		submitErr := sink.Submit(context.Background(), uuid.New(), event)

		// ASSERT
		assert.EqualError(t, submitErr, "settings unavailable")
	})
}
