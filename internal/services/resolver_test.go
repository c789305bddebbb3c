package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveCustomer_FoundByEmail(t *testing.T) {
	// ARRANGE
	ledger := &fakeLedger{onQuery: func(q string) (*quickbooks.QueryResponse, error) {
		return &quickbooks.QueryResponse{Customer: []quickbooks.Customer{{ID: "58"}}}, nil
	}}
	r := NewResolver("", "", zap.NewNop())

	// ACT
	id, err := r.ResolveCustomer(context.Background(), ledger, "Jane", "jane@example.com")

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "58", id)
	assert.Empty(t, ledger.callsOf("create"))
	assert.Equal(t, "SELECT * FROM Customer WHERE PrimaryEmailAddr = 'jane@example.com'", ledger.callsOf("query")[0].Query)
}

func TestResolveCustomer_CreatesWithTruncatedNames(t *testing.T) {
	ledger := &fakeLedger{
		onCreate: func(entity string, doc any) (any, error) {
			return quickbooks.Customer{ID: "91"}, nil
		},
	}
	r := NewResolver("", "", zap.NewNop())
	name := "Bartholomew Maximilian Featherstonehaugh"

	id, err := r.ResolveCustomer(context.Background(), ledger, name, "bart@example.com")

	require.NoError(t, err)
	assert.Equal(t, "91", id)
	creates := ledger.callsOf("create")
	require.Len(t, creates, 1)
	doc := creates[0].Doc.(quickbooks.Customer)
	assert.Equal(t, "Bartholomew Maximilian Fe", doc.GivenName)
	assert.Len(t, doc.FamilyName, 25)
	assert.Equal(t, name+" (bart@example.com)", doc.DisplayName)
	assert.Equal(t, "bart@example.com", doc.PrimaryEmailAddr.Address)
	assert.Equal(t, "Created via Stripe integration", doc.Notes)
}

func TestResolveCustomer_NameDefaultsToEmail(t *testing.T) {
	ledger := &fakeLedger{onCreate: func(string, any) (any, error) { return quickbooks.Customer{ID: "1"}, nil }}
	r := NewResolver("", "", zap.NewNop())

	_, err := r.ResolveCustomer(context.Background(), ledger, "", "solo@example.com")

	require.NoError(t, err)
	doc := ledger.callsOf("create")[0].Doc.(quickbooks.Customer)
	assert.Equal(t, "solo@example.com (solo@example.com)", doc.DisplayName)
}

func TestResolveCustomer_DisplayNameTruncatedTo100(t *testing.T) {
	ledger := &fakeLedger{onCreate: func(string, any) (any, error) { return quickbooks.Customer{ID: "1"}, nil }}
	r := NewResolver("", "", zap.NewNop())

	_, err := r.ResolveCustomer(context.Background(), ledger, strings.Repeat("a", 120), "x@example.com")

	require.NoError(t, err)
	doc := ledger.callsOf("create")[0].Doc.(quickbooks.Customer)
	assert.Len(t, doc.DisplayName, 100)
}

func TestResolveCustomer_MissingEmail(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewResolver("", "", zap.NewNop())

	_, err := r.ResolveCustomer(context.Background(), ledger, "Jane", "  ")

	assert.Equal(t, syncerr.KindValidation, syncerr.KindOf(err))
	assert.Empty(t, ledger.calls)
}

func TestResolveCustomer_DuplicateNameFallsBackToDisplayName(t *testing.T) {
	ledger := &fakeLedger{
		onQuery: func(q string) (*quickbooks.QueryResponse, error) {
			if strings.Contains(q, "DisplayName") {
				return &quickbooks.QueryResponse{Customer: []quickbooks.Customer{{ID: "12"}}}, nil
			}
			return &quickbooks.QueryResponse{}, nil
		},
		onCreate: func(string, any) (any, error) {
			return nil, &quickbooks.APIError{StatusCode: http.StatusBadRequest, Code: "6240", Message: "Duplicate Name Exists Error"}
		},
	}
	r := NewResolver("", "", zap.NewNop())

	id, err := r.ResolveCustomer(context.Background(), ledger, "Jane", "jane@example.com")

	require.NoError(t, err)
	assert.Equal(t, "12", id)
}

func TestResolveItem_FallbackOnCreateFailure(t *testing.T) {
	// ARRANGE: the product item cannot be created, the fallback item exists
	ledger := &fakeLedger{
		onQuery: func(q string) (*quickbooks.QueryResponse, error) {
			switch {
			case strings.Contains(q, "Name = 'Stripe Payment'"):
				return &quickbooks.QueryResponse{Item: []quickbooks.Item{{ID: "99"}}}, nil
			case strings.Contains(q, "FROM Account"):
				return &quickbooks.QueryResponse{Account: []quickbooks.Account{{ID: "79"}}}, nil
			}
			return &quickbooks.QueryResponse{}, nil
		},
		onCreate: func(string, any) (any, error) {
			return nil, &quickbooks.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid name"}
		},
	}
	r := NewResolver("Stripe Payment", "", zap.NewNop())

	// ACT
	id, err := r.ResolveItem(context.Background(), ledger, ItemSpec{Name: "Gold: Plan", AllowFallback: true})

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "99", id)
}

func TestResolveItem_TransientFailureSkipsFallback(t *testing.T) {
	// ARRANGE
	ledger := &fakeLedger{
		onQuery: func(q string) (*quickbooks.QueryResponse, error) {
			switch {
			case strings.Contains(q, "Name = 'Stripe Payment'"):
				return &quickbooks.QueryResponse{Item: []quickbooks.Item{{ID: "99"}}}, nil
			case strings.Contains(q, "FROM Account"):
				return &quickbooks.QueryResponse{Account: []quickbooks.Account{{ID: "79"}}}, nil
			}
			return &quickbooks.QueryResponse{}, nil
		},
		onCreate: func(string, any) (any, error) {
			return nil, &quickbooks.APIError{StatusCode: http.StatusServiceUnavailable, Message: "Service down"}
		},
	}
	r := NewResolver("Stripe Payment", "", zap.NewNop())

	// ACT
	id, err := r.ResolveItem(context.Background(), ledger, ItemSpec{Name: "Gold", AllowFallback: true})

	// ASSERT
	require.Error(t, err)
	assert.Empty(t, id)
	assert.True(t, syncerr.Retryable(err))
	for _, c := range ledger.callsOf("query") {
		assert.NotContains(t, c.Query, "Stripe Payment")
	}
}

func TestResolveItem_FallbackDisabled(t *testing.T) {
	ledger := &fakeLedger{
		onCreate: func(string, any) (any, error) {
			return nil, &quickbooks.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid name"}
		},
	}
	r := NewResolver("", "", zap.NewNop())

	_, err := r.ResolveItem(context.Background(), ledger, ItemSpec{Name: "Gold", AllowFallback: true})

	require.Error(t, err)
	assert.Equal(t, syncerr.KindUpstream, syncerr.KindOf(err))
	assert.False(t, syncerr.Retryable(err))
}

func TestResolveItem_CreateUsesLimits(t *testing.T) {
	ledger := &fakeLedger{
		onQuery: func(q string) (*quickbooks.QueryResponse, error) {
			if strings.Contains(q, "Sales of Product Income") {
				return &quickbooks.QueryResponse{Account: []quickbooks.Account{{ID: "79"}}}, nil
			}
			return &quickbooks.QueryResponse{}, nil
		},
		onCreate: func(string, any) (any, error) { return quickbooks.Item{ID: "20"}, nil },
	}
	r := NewResolver("", "", zap.NewNop())
	price := 12.5

	id, err := r.ResolveItem(context.Background(), ledger, ItemSpec{
		Name:      "Widget",
		Sku:       strings.Repeat("s", 40),
		UnitPrice: &price,
		Taxable:   true,
	})

	require.NoError(t, err)
	assert.Equal(t, "20", id)
	doc := ledger.callsOf("create")[0].Doc.(quickbooks.Item)
	assert.Equal(t, "Service", doc.Type)
	assert.Len(t, doc.Sku, 31)
	assert.Equal(t, 12.5, doc.UnitPrice)
	assert.Equal(t, "79", doc.IncomeAccountRef.Value)
}

func TestResolveIncomeAccount_DefaultWhenNoneExist(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewResolver("", "", zap.NewNop())

	id, err := r.ResolveIncomeAccount(context.Background(), ledger)

	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Len(t, ledger.callsOf("query"), 3)
}

func TestResolvePaymentMethod(t *testing.T) {
	tests := []struct {
		providerType string
		wantName     string
		wantType     string
	}{
		{"card", "Credit Card", "CREDIT_CARD"},
		{"link", "Credit Card", "CREDIT_CARD"},
		{"us_bank_account", "ACH", "NON_CREDIT_CARD"},
		{"sepa_debit", "Bank Transfer", "NON_CREDIT_CARD"},
		{"stripe", "Stripe", "NON_CREDIT_CARD"},
		{"klarna", "Credit Card", "CREDIT_CARD"},
	}
	for _, tt := range tests {
		t.Run(tt.providerType, func(t *testing.T) {
			ledger := &fakeLedger{onCreate: func(string, any) (any, error) { return quickbooks.PaymentMethod{ID: "7"}, nil }}
			r := NewResolver("", "", zap.NewNop())

			id, err := r.ResolvePaymentMethod(context.Background(), ledger, tt.providerType)

			require.NoError(t, err)
			assert.Equal(t, "7", id)
			doc := ledger.callsOf("create")[0].Doc.(quickbooks.PaymentMethod)
			assert.Equal(t, tt.wantName, doc.Name)
			assert.Equal(t, tt.wantType, doc.Type)
		})
	}
}

func TestResolveAccount_QuotesLiteral(t *testing.T) {
	ledger := &fakeLedger{}
	r := NewResolver("", "", zap.NewNop())

	id, err := r.ResolveAccount(context.Background(), ledger, "Owner's Equity")

	require.NoError(t, err)
	assert.Empty(t, id)
	assert.True(t, queryContains(ledger.callsOf("query")[0].Query, `Name = 'Owner\'s Equity'`))
}
