package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/quickbooks"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Intuit access tokens live one hour; refresh tokens about 100 days.
const (
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 100 * 24 * time.Hour
)

type TokenServiceConfig struct {
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RefreshWindow time.Duration
	HTTPClient    *http.Client
}

// TokenService keeps QuickBooks access tokens valid, on demand before each
// ledger call and periodically through Sweep.
type TokenService struct {
	tokens        repositories.TokenRepository
	oauth         *oauth2.Config
	httpClient    *http.Client
	refreshWindow time.Duration
	log           *zap.Logger
	now           func() time.Time
}

// SweepResult counts the outcome of one periodic refresh pass.
type SweepResult struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

func NewTokenService(tokens repositories.TokenRepository, cfg TokenServiceConfig, log *zap.Logger) *TokenService {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	window := cfg.RefreshWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &TokenService{
		tokens: tokens,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient:    httpClient,
		refreshWindow: window,
		log:           log.Named("tokens"),
		now:           time.Now,
	}
}

// ValidToken returns the tenant's token, refreshing it first when the
// access token has expired.
func (s *TokenService) ValidToken(ctx context.Context, tenantID uuid.UUID) (*models.OAuthToken, error) {
	token, err := s.tokens.Get(ctx, tenantID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, syncerr.Configuration("QuickBooks is not connected for this tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger token: %w", err)
	}
	if !token.AccessExpired(s.now()) {
		return token, nil
	}
	return s.Refresh(ctx, token)
}

// Provider adapts ValidToken to the ledger client's token hook.
func (s *TokenService) Provider(tenantID uuid.UUID) quickbooks.TokenProvider {
	return func(ctx context.Context) (string, error) {
		token, err := s.ValidToken(ctx, tenantID)
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}
}

// Refresh runs the refresh-token grant and stores the rotated pair only if
// nobody rotated it in the meantime. When another refresher won, its token
// is returned instead.
func (s *TokenService) Refresh(ctx context.Context, current *models.OAuthToken) (*models.OAuthToken, error) {
	now := s.now()
	if current.RefreshExpired(now) {
		return nil, syncerr.Configuration("QuickBooks authorization expired, reconnect required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	src := s.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       now.Add(-time.Minute),
	})
	fresh, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return nil, syncerr.Configuration("QuickBooks refresh token rejected, reconnect required")
		}
		return nil, syncerr.Upstream(err, "failed to refresh QuickBooks token")
	}

	rotated := &models.OAuthToken{
		TenantID:              current.TenantID,
		RealmID:               current.RealmID,
		AccessToken:           fresh.AccessToken,
		RefreshToken:          fresh.RefreshToken,
		AccessTokenExpiresAt:  fresh.Expiry,
		RefreshTokenExpiresAt: now.Add(refreshTokenTTL(fresh)),
		CreatedAt:             current.CreatedAt,
	}
	if rotated.RefreshToken == "" {
		rotated.RefreshToken = current.RefreshToken
	}
	if rotated.AccessTokenExpiresAt.IsZero() {
		rotated.AccessTokenExpiresAt = now.Add(defaultAccessTokenTTL)
	}

	err = s.tokens.CompareAndSwap(ctx, current.RefreshToken, rotated)
	if errors.Is(err, repositories.ErrTokenConflict) {
		s.log.Info("token rotated concurrently, using stored token",
			zap.String("tenant_id", current.TenantID.String()))
		winner, getErr := s.tokens.Get(ctx, current.TenantID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to reload rotated token: %w", getErr)
		}
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("ledger token refreshed",
		zap.String("tenant_id", current.TenantID.String()),
		zap.Time("access_expires_at", rotated.AccessTokenExpiresAt))
	return rotated, nil
}

// Sweep refreshes every token whose access token expires within the refresh
// window while its refresh token is still valid. Individual failures are
// logged and counted, not returned.
func (s *TokenService) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	expiring, err := s.tokens.ListExpiring(ctx, now, now.Add(s.refreshWindow))
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(expiring)}
	for _, token := range expiring {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if _, err := s.Refresh(ctx, token); err != nil {
			result.Failed++
			s.log.Warn("token refresh failed",
				zap.String("tenant_id", token.TenantID.String()),
				zap.Error(err))
			continue
		}
		result.Refreshed++
	}

	s.log.Info("token sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("failed", result.Failed))
	return result, nil
}

func refreshTokenTTL(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("x_refresh_token_expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			return d
		}
	}
	return defaultRefreshTokenTTL
}
