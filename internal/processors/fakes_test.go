package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/stripe"
	"go.uber.org/zap"
)

// ---- ledger ----

type ledgerCall struct {
	Op     string
	Entity string
	Query  string
	Doc    any
}

// fakeLedger answers queries with nothing found and assigns ids to created
// entities unless overridden.
type fakeLedger struct {
	mu       sync.Mutex
	calls    []ledgerCall
	seq      int
	onQuery  func(query string) (*quickbooks.QueryResponse, error)
	onCreate func(entity string, doc any) (any, error)
	onRead   func(entity, id string) (any, error)
	onUpdate func(entity string, doc any) error
}

func (f *fakeLedger) record(c ledgerCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeLedger) callsOf(op string) []ledgerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerCall
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeLedger) created(entity string) []any {
	var docs []any
	for _, c := range f.callsOf("create") {
		if c.Entity == entity {
			docs = append(docs, c.Doc)
		}
	}
	return docs
}

func (f *fakeLedger) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLedger) Request(ctx context.Context, method, path string, body any) (*quickbooks.Response, error) {
	f.record(ledgerCall{Op: "request", Entity: path, Doc: body})
	return &quickbooks.Response{StatusCode: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
}

func (f *fakeLedger) Create(ctx context.Context, entity string, doc any, out any) error {
	f.record(ledgerCall{Op: "create", Entity: entity, Doc: doc})
	if f.onCreate != nil {
		created, err := f.onCreate(entity, doc)
		if err != nil {
			return err
		}
		return copyJSON(created, out)
	}
	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("%s-%d", entity, f.seq)
	f.mu.Unlock()
	return copyJSON(map[string]any{"Id": id}, out)
}

func (f *fakeLedger) Read(ctx context.Context, entity, id string, out any) error {
	f.record(ledgerCall{Op: "read", Entity: entity, Query: id})
	if f.onRead == nil {
		return &quickbooks.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	found, err := f.onRead(entity, id)
	if err != nil {
		return err
	}
	return copyJSON(found, out)
}

func (f *fakeLedger) Update(ctx context.Context, entity string, doc any, out any) error {
	f.record(ledgerCall{Op: "update", Entity: entity, Doc: doc})
	if f.onUpdate != nil {
		return f.onUpdate(entity, doc)
	}
	return nil
}

func (f *fakeLedger) Query(ctx context.Context, query string) (*quickbooks.QueryResponse, error) {
	f.record(ledgerCall{Op: "query", Query: query})
	if f.onQuery == nil {
		return &quickbooks.QueryResponse{}, nil
	}
	return f.onQuery(query)
}

func copyJSON(src, dst any) error {
	if dst == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// ---- stripe ----

type fakeStripe struct {
	mu             sync.Mutex
	calls          int
	events         map[string]*stripe.Event
	invoices       map[string]*stripe.Invoice
	charges        map[string]*stripe.Charge
	intents        map[string]*stripe.PaymentIntent
	customers      map[string]*stripe.Customer
	products       map[string]*stripe.Product
	creditNotes    map[string]*stripe.CreditNote
	sessions       map[string]*stripe.CheckoutSession
	sessionItems   map[string][]stripe.LineItem
	quoteLineItems map[string][]stripe.LineItem
}

func newFakeStripe() *fakeStripe {
	return &fakeStripe{
		events:         map[string]*stripe.Event{},
		invoices:       map[string]*stripe.Invoice{},
		charges:        map[string]*stripe.Charge{},
		intents:        map[string]*stripe.PaymentIntent{},
		customers:      map[string]*stripe.Customer{},
		products:       map[string]*stripe.Product{},
		creditNotes:    map[string]*stripe.CreditNote{},
		sessions:       map[string]*stripe.CheckoutSession{},
		sessionItems:   map[string][]stripe.LineItem{},
		quoteLineItems: map[string][]stripe.LineItem{},
	}
}

func (f *fakeStripe) hit() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeStripe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func notFound(id string) error {
	return &stripe.APIError{StatusCode: http.StatusNotFound, Code: "resource_missing", Message: "No such object: " + id}
}

func lookup[T any](f *fakeStripe, m map[string]*T, id string) (*T, error) {
	f.hit()
	if v, ok := m[id]; ok {
		return v, nil
	}
	return nil, notFound(id)
}

func (f *fakeStripe) GetEvent(ctx context.Context, id string) (*stripe.Event, error) {
	return lookup(f, f.events, id)
}

func (f *fakeStripe) GetInvoice(ctx context.Context, id string) (*stripe.Invoice, error) {
	return lookup(f, f.invoices, id)
}

func (f *fakeStripe) GetCharge(ctx context.Context, id string) (*stripe.Charge, error) {
	return lookup(f, f.charges, id)
}

func (f *fakeStripe) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	return lookup(f, f.intents, id)
}

func (f *fakeStripe) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return lookup(f, f.customers, id)
}

func (f *fakeStripe) GetProduct(ctx context.Context, id string) (*stripe.Product, error) {
	return lookup(f, f.products, id)
}

func (f *fakeStripe) GetCreditNote(ctx context.Context, id string) (*stripe.CreditNote, error) {
	return lookup(f, f.creditNotes, id)
}

func (f *fakeStripe) FindCheckoutSession(ctx context.Context, paymentIntentID string) (*stripe.CheckoutSession, error) {
	f.hit()
	return f.sessions[paymentIntentID], nil
}

func (f *fakeStripe) ListCheckoutLineItems(ctx context.Context, sessionID string) ([]stripe.LineItem, error) {
	f.hit()
	return f.sessionItems[sessionID], nil
}

func (f *fakeStripe) ListQuoteLineItems(ctx context.Context, quoteID string) ([]stripe.LineItem, error) {
	f.hit()
	return f.quoteLineItems[quoteID], nil
}

// ---- repositories ----

type memoryMappings struct {
	mu      sync.Mutex
	records map[string]*models.MappingRecord
}

func newMemoryMappings() *memoryMappings {
	return &memoryMappings{records: map[string]*models.MappingRecord{}}
}

func mappingKey(tenantID uuid.UUID, kind models.MappingKind, providerID string) string {
	return tenantID.String() + "/" + string(kind) + "/" + providerID
}

func (m *memoryMappings) Find(ctx context.Context, tenantID uuid.UUID, kind models.MappingKind, providerID string) (*models.MappingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[mappingKey(tenantID, kind, providerID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryMappings) Create(ctx context.Context, mapping *models.MappingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mappingKey(mapping.TenantID, mapping.Kind, mapping.ProviderID)
	if _, ok := m.records[key]; ok {
		return repositories.ErrMappingExists
	}
	mapping.ID = int64(len(m.records) + 1)
	mapping.CreatedAt = time.Now()
	cp := *mapping
	m.records[key] = &cp
	return nil
}

func (m *memoryMappings) put(tenantID uuid.UUID, kind models.MappingKind, providerID, targetID string) {
	_ = m.Create(context.Background(), &models.MappingRecord{TenantID: tenantID, Kind: kind, ProviderID: providerID, TargetID: targetID})
}

type memoryHistory struct {
	mu      sync.Mutex
	records []*models.SyncHistoryRecord
}

func (h *memoryHistory) Create(ctx context.Context, record *models.SyncHistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	record.ID = uuid.New()
	record.CreatedAt = time.Now()
	cp := *record
	h.records = append(h.records, &cp)
	return nil
}

func (h *memoryHistory) Finalize(ctx context.Context, record *models.SyncHistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.ID != record.ID {
			continue
		}
		if r.Status != models.StatusPending {
			return repositories.ErrAlreadyFinalized
		}
		now := time.Now()
		cp := *record
		cp.UpdatedAt = &now
		*r = cp
		return nil
	}
	return repositories.ErrNotFound
}

func (h *memoryHistory) List(ctx context.Context, filter models.HistoryFilter) ([]*models.SyncHistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.SyncHistoryRecord(nil), h.records...), nil
}

func (h *memoryHistory) all() []*models.SyncHistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.SyncHistoryRecord(nil), h.records...)
}

type memoryTaxRates struct {
	entries []models.TaxRateCacheEntry
}

func (r *memoryTaxRates) ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []models.TaxRateCacheEntry) error {
	r.entries = entries
	return nil
}

func (r *memoryTaxRates) List(ctx context.Context, tenantID uuid.UUID) ([]models.TaxRateCacheEntry, error) {
	return r.entries, nil
}

// ---- tenant + clients ----

type fakeTenants struct {
	settings *models.SyncSettings
	locale   models.TaxLocale
	loadErr  error
}

func (f *fakeTenants) Settings(ctx context.Context, tenantID uuid.UUID) (*models.SyncSettings, error) {
	if f.settings == nil {
		return &models.SyncSettings{TenantID: tenantID}, nil
	}
	return f.settings, nil
}

func (f *fakeTenants) Load(ctx context.Context, tenantID uuid.UUID, settings *models.SyncSettings) (*models.TenantContext, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if settings == nil {
		settings, _ = f.Settings(ctx, tenantID)
	}
	tc := &models.TenantContext{
		TenantID: tenantID,
		APIKey:   "sk_test_123",
		Ledger:   &models.OAuthToken{TenantID: tenantID, RealmID: "realm-1"},
		Settings: settings,
	}
	tc.SetLocale(f.locale)
	return tc, nil
}

type fakeClients struct {
	stripe *fakeStripe
	ledger *fakeLedger
}

func (c *fakeClients) Stripe(tc *models.TenantContext) stripe.API {
	return c.stripe
}

func (c *fakeClients) Ledger(tc *models.TenantContext) quickbooks.API {
	return c.ledger
}

// harness wires a dispatcher over in-memory fakes for a US company with
// every event type enabled.
type harness struct {
	tenantID   uuid.UUID
	stripe     *fakeStripe
	ledger     *fakeLedger
	mappings   *memoryMappings
	history    *memoryHistory
	taxRates   *memoryTaxRates
	tenants    *fakeTenants
	dispatcher *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tenantID := uuid.New()
	h := &harness{
		tenantID: tenantID,
		stripe:   newFakeStripe(),
		ledger:   &fakeLedger{},
		mappings: newMemoryMappings(),
		history:  &memoryHistory{},
		taxRates: &memoryTaxRates{},
		tenants: &fakeTenants{
			settings: &models.SyncSettings{TenantID: tenantID, Enabled: models.MaskOf(models.SupportedEventTypes...)},
			locale:   models.LocaleUS,
		},
	}
	log := zap.NewNop()
	clients := &fakeClients{stripe: h.stripe, ledger: h.ledger}
	deps := Deps{
		Mappings: h.mappings,
		Resolver: services.NewResolver("Stripe Item", "1", log),
		Tax:      services.NewTaxService(h.taxRates, nil, nil, log),
		Clients:  clients,
		Log:      log,
	}
	runner := NewRunner(h.history, h.tenants, log)
	h.dispatcher = NewDispatcher(h.tenants, clients, runner, NewAll(deps), log)
	return h
}

func (h *harness) dispatch(t *testing.T, raw string) (*models.SyncHistoryRecord, error) {
	t.Helper()
	event, err := models.ParseEvent([]byte(raw), time.Now())
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	return h.dispatcher.Dispatch(context.Background(), h.tenantID, event)
}

func int64Ptr(v int64) *int64 { return &v }
