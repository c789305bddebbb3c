package processors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
)

// Processor turns one kind of Stripe event into QBO documents.
type Processor interface {
	EventType() models.EventType
	Process(ctx context.Context, tc *models.TenantContext, event *models.ProviderEvent) (*Outcome, error)
}

// Outcome is a processor's successful (or skipped) result.
type Outcome struct {
	Status         models.SyncStatus
	Message        string
	LedgerEntityID string
	Detail         map[string]any
}

func success(message, ledgerID string, detail map[string]any) *Outcome {
	return &Outcome{Status: models.StatusSuccess, Message: message, LedgerEntityID: ledgerID, Detail: detail}
}

func skipped(message, ledgerID string) *Outcome {
	return &Outcome{Status: models.StatusSkipped, Message: message, LedgerEntityID: ledgerID}
}

// ClientSource builds the per-tenant API clients.
type ClientSource interface {
	Stripe(tc *models.TenantContext) stripe.API
	Ledger(tc *models.TenantContext) quickbooks.API
}

// TenantLoader resolves settings and the TenantContext for a tenant.
type TenantLoader interface {
	Settings(ctx context.Context, tenantID uuid.UUID) (*models.SyncSettings, error)
	Load(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings) (*models.TenantContext, error)
}

type Deps struct {
	Mappings repositories.MappingRepository
	Resolver *services.Resolver
	Tax      *services.TaxService
	Clients  ClientSource
	Log      *zap.Logger
}

// base carries what every processor shares.
type base struct {
	mappings repositories.MappingRepository
	resolver *services.Resolver
	tax      *services.TaxService
	clients  ClientSource
	log      *zap.Logger
}

func newBase(d Deps, name string) base {
	return base{
		mappings: d.Mappings,
		resolver: d.Resolver,
		tax:      d.Tax,
		clients:  d.Clients,
		log:      d.Log.Named(name),
	}
}

// NewAll returns one processor per supported event type.
func NewAll(d Deps) []Processor {
	return []Processor{
		NewInvoicePaidProcessor(d),
		NewInvoiceFinalizedProcessor(d),
		NewPaymentIntentProcessor(d),
		NewChargeSucceededProcessor(d),
		NewChargeFailedProcessor(d),
		NewRefundProcessor(d),
		NewCreditNoteProcessor(d),
		NewProductProcessor(d),
		NewQuoteProcessor(d),
	}
}

// existing returns the mapping for providerID, nil when there is none.
func (b *base) existing(ctx context.Context, tc *models.TenantContext, kind models.MappingKind, providerID string) (*models.MappingRecord, error) {
	m, err := b.mappings.Find(ctx, tc.TenantID, kind, providerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// record stores the mapping for a document QBO has already accepted. A lost
// insert race means another attempt mapped the same object first.
func (b *base) record(ctx context.Context, tc *models.TenantContext, kind models.MappingKind, providerID, targetID, secondaryID string) error {
	m := &models.MappingRecord{
		TenantID:   tc.TenantID,
		Kind:       kind,
		ProviderID: providerID,
		TargetID:   targetID,
	}
	if secondaryID != "" {
		m.SecondaryTargetID = &secondaryID
	}
	err := b.mappings.Create(ctx, m)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrMappingExists):
		b.log.Warn("mapping already recorded by another attempt",
			zap.String("kind", string(kind)),
			zap.String("provider_id", providerID),
			zap.String("target_id", targetID))
		return syncerr.ErrDuplicate
	default:
		return syncerr.Partial(err, "%s %s created but mapping was not saved", kind, targetID).
			WithDetail("target_id", targetID)
	}
}

func fetchFailed(err error, what, id string) error {
	return syncerr.Upstream(err, "failed to fetch Stripe %s %s", what, id)
}
