package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
)

type ledgerCall struct {
	Op     string
	Entity string
	Query  string
	Doc    any
}

// fakeLedger is an in-memory quickbooks.API. Queries and creates are
// answered by the configured funcs.
type fakeLedger struct {
	mu       sync.Mutex
	calls    []ledgerCall
	onQuery  func(query string) (*quickbooks.QueryResponse, error)
	onCreate func(entity string, doc any) (any, error)
	onRead   func(entity, id string) (any, error)
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

func (f *fakeLedger) Request(ctx context.Context, method, path string, body any) (*quickbooks.Response, error) {
	f.record(ledgerCall{Op: "request", Entity: path, Doc: body})
	return &quickbooks.Response{StatusCode: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
}

func (f *fakeLedger) Create(ctx context.Context, entity string, doc any, out any) error {
	f.record(ledgerCall{Op: "create", Entity: entity, Doc: doc})
	if f.onCreate == nil {
		return nil
	}
	created, err := f.onCreate(entity, doc)
	if err != nil {
		return err
	}
	return copyJSON(created, out)
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

func queryContains(query string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(query, p) {
			return false
		}
	}
	return true
}

// memoryTokenRepo is an in-memory TokenRepository with the same
// compare-and-swap rule as the Postgres one.
type memoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]models.OAuthToken
}

func newMemoryTokenRepo(tokens ...*models.OAuthToken) *memoryTokenRepo {
	r := &memoryTokenRepo{tokens: make(map[uuid.UUID]models.OAuthToken)}
	for _, t := range tokens {
		r.tokens[t.TenantID] = *t
	}
	return r
}

func (r *memoryTokenRepo) Get(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tenantID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &t, nil
}

func (r *memoryTokenRepo) ListExpiring(ctx context.Context, now, before time.Time) ([]*models.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OAuthToken
	for _, t := range r.tokens {
		if t.AccessTokenExpiresAt.Before(before) && t.RefreshTokenExpiresAt.After(now) {
			t := t
			out = append(out, &t)
		}
	}
	return out, nil
}

func (r *memoryTokenRepo) CompareAndSwap(ctx context.Context, previousRefreshToken string, token *models.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tokens[token.TenantID]
	if !ok || current.RefreshToken != previousRefreshToken {
		return repositories.ErrTokenConflict
	}
	r.tokens[token.TenantID] = *token
	return nil
}

func (r *memoryTokenRepo) Upsert(ctx context.Context, token *models.OAuthToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.TenantID] = *token
	return nil
}

type memoryTaxRateRepo struct {
	entries map[uuid.UUID][]models.TaxRateCacheEntry
}

func (r *memoryTaxRateRepo) ReplaceAll(ctx context.Context, tenantID uuid.UUID, entries []models.TaxRateCacheEntry) error {
	if r.entries == nil {
		r.entries = make(map[uuid.UUID][]models.TaxRateCacheEntry)
	}
	r.entries[tenantID] = entries
	return nil
}

func (r *memoryTaxRateRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.TaxRateCacheEntry, error) {
	return r.entries[tenantID], nil
}

type memoryDepositRepo struct {
	accounts []models.DepositAccount
}

func (r *memoryDepositRepo) ReplaceAll(ctx context.Context, tenantID uuid.UUID, accounts []models.DepositAccount) error {
	r.accounts = accounts
	return nil
}

func (r *memoryDepositRepo) List(ctx context.Context, tenantID uuid.UUID) ([]models.DepositAccount, error) {
	return r.accounts, nil
}

type memoryLocaleCache struct {
	locales map[string]models.TaxLocale
}

func (c *memoryLocaleCache) GetLocale(ctx context.Context, realmID string) (models.TaxLocale, error) {
	if l, ok := c.locales[realmID]; ok {
		return l, nil
	}
	return "", repositories.ErrNotFound
}

func (c *memoryLocaleCache) SetLocale(ctx context.Context, realmID string, locale models.TaxLocale) error {
	if c.locales == nil {
		c.locales = make(map[string]models.TaxLocale)
	}
	c.locales[realmID] = locale
	return nil
}
