package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"go.uber.org/zap"
)

// Dispatcher routes an event to its processor when the tenant has that
// event type enabled.
type Dispatcher struct {
	tenants    TenantLoader
	clients    ClientSource
	runner     *Runner
	processors map[models.EventType]Processor
	log        *zap.Logger
}

func NewDispatcher(tenants TenantLoader, clients ClientSource, runner *Runner, processors []Processor, log *zap.Logger) *Dispatcher {
	byType := make(map[models.EventType]Processor, len(processors))
	for _, p := range processors {
		byType[p.EventType()] = p
	}
	return &Dispatcher{
		tenants:    tenants,
		clients:    clients,
		runner:     runner,
		processors: byType,
		log:        log.Named("dispatcher"),
	}
}

// Dispatch processes the event and returns its history record. Unhandled
// and disabled events return a nil record and no error.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID uuid.UUID, event *models.ProviderEvent) (*models.SyncHistoryRecord, error) {
	p, ok := d.processors[event.Type]
	if !ok || !event.Handled() {
		d.log.Debug("event type not handled", zap.String("event_type", string(event.Type)))
		return nil, nil
	}

	settings, err := d.tenants.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !settings.IsEnabled(event.Type) {
		d.log.Info("event type disabled",
			zap.String("tenant_id", tenantID.String()),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return nil, nil
	}

	return d.runner.Run(ctx, tenantID, settings, event, p)
}

// Replay fetches an event from Stripe by id and dispatches it again.
// Mappings make a replay of an already synced event a skip.
func (d *Dispatcher) Replay(ctx context.Context, tenantID uuid.UUID, eventID string) (*models.SyncHistoryRecord, error) {
	tc, err := d.tenants.Load(ctx, tenantID, nil)
	if err != nil {
		return nil, err
	}
	fetched, err := d.clients.Stripe(tc).GetEvent(ctx, eventID)
	if err != nil {
		return nil, fetchFailed(err, "event", eventID)
	}
	raw, err := json.Marshal(fetched)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", eventID, err)
	}
	event, err := models.ParseEvent(raw, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	d.log.Info("replaying event",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
	return d.Dispatch(ctx, tenantID, event)
}
