package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTokenServer(t *testing.T, calls *int32, before func()) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "client credentials should be sent in the Authorization header")
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
		if before != nil {
			before()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","token_type":"bearer","expires_in":3600,"x_refresh_token_expires_in":8726400}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTokenService(repo *memoryTokenRepo, tokenURL string) *TokenService {
	return NewTokenService(repo, TokenServiceConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     tokenURL,
	}, zap.NewNop())
}

func expiredToken(tenantID uuid.UUID) *models.OAuthToken {
	return &models.OAuthToken{
		TenantID:              tenantID,
		RealmID:               "realm-1",
		AccessToken:           "at-old",
		RefreshToken:          "rt-old",
		AccessTokenExpiresAt:  time.Now().Add(-time.Minute),
		RefreshTokenExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
}

func TestTokenService_ValidToken_NotExpired(t *testing.T) {
	// ARRANGE
	var calls int32
	srv := newTokenServer(t, &calls, nil)
	tenantID := uuid.New()
	token := expiredToken(tenantID)
	token.AccessTokenExpiresAt = time.Now().Add(30 * time.Minute)
	svc := newTestTokenService(newMemoryTokenRepo(token), srv.URL)

	// ACT
	got, err := svc.ValidToken(context.Background(), tenantID)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "at-old", got.AccessToken)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTokenService_ValidToken_RefreshesExpired(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, nil)
	tenantID := uuid.New()
	repo := newMemoryTokenRepo(expiredToken(tenantID))
	svc := newTestTokenService(repo, srv.URL)

	got, err := svc.ValidToken(context.Background(), tenantID)

	require.NoError(t, err)
	assert.Equal(t, "at-new", got.AccessToken)
	assert.Equal(t, "rt-new", got.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.AccessTokenExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(8726400*time.Second), got.RefreshTokenExpiresAt, time.Minute)

	stored, err := repo.Get(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "rt-new", stored.RefreshToken)
	assert.Equal(t, "realm-1", stored.RealmID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTokenService_Refresh_LosesRaceReturnsWinner(t *testing.T) {
	// ARRANGE: another refresher rotates the token while ours is in flight
	tenantID := uuid.New()
	repo := newMemoryTokenRepo(expiredToken(tenantID))
	var calls int32
	srv := newTokenServer(t, &calls, func() {
		winner := expiredToken(tenantID)
		winner.AccessToken = "at-winner"
		winner.RefreshToken = "rt-winner"
		winner.AccessTokenExpiresAt = time.Now().Add(time.Hour)
		_ = repo.Upsert(context.Background(), winner)
	})
	svc := newTestTokenService(repo, srv.URL)

	// ACT
	got, err := svc.Refresh(context.Background(), expiredToken(tenantID))

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, "at-winner", got.AccessToken)
	stored, _ := repo.Get(context.Background(), tenantID)
	assert.Equal(t, "rt-winner", stored.RefreshToken)
}

func TestTokenService_Refresh_ExpiredRefreshToken(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, nil)
	tenantID := uuid.New()
	token := expiredToken(tenantID)
	token.RefreshTokenExpiresAt = time.Now().Add(-time.Hour)
	svc := newTestTokenService(newMemoryTokenRepo(token), srv.URL)

	_, err := svc.Refresh(context.Background(), token)

	require.Error(t, err)
	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestTokenService_ValidToken_NotConnected(t *testing.T) {
	svc := newTestTokenService(newMemoryTokenRepo(), "http://127.0.0.1:1")

	_, err := svc.ValidToken(context.Background(), uuid.New())

	assert.Equal(t, syncerr.KindConfiguration, syncerr.KindOf(err))
}

func TestTokenService_Sweep(t *testing.T) {
	// ARRANGE: one token due for refresh, one far from expiry
	var calls int32
	srv := newTokenServer(t, &calls, nil)
	due := expiredToken(uuid.New())
	due.AccessTokenExpiresAt = time.Now().Add(10 * time.Minute)
	fresh := expiredToken(uuid.New())
	fresh.AccessTokenExpiresAt = time.Now().Add(72 * time.Hour)
	repo := newMemoryTokenRepo(due, fresh)
	svc := newTestTokenService(repo, srv.URL)

	// ACT
	result, err := svc.Sweep(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 1, Refreshed: 1, Failed: 0}, result)
	stored, _ := repo.Get(context.Background(), due.TenantID)
	assert.Equal(t, "at-new", stored.AccessToken)
	untouched, _ := repo.Get(context.Background(), fresh.TenantID)
	assert.Equal(t, "at-old", untouched.AccessToken)
}

func TestTokenService_Sweep_CountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()
	due := expiredToken(uuid.New())
	svc := newTestTokenService(newMemoryTokenRepo(due), srv.URL)

	result, err := svc.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Refreshed)
}
