package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/ledgersync/internal/config"
	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/prudhvinik1/ledgersync/internal/utils"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Operator API tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue [subject]",
		Short: "Issue a bearer token for the operator API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			token, expiresAt, err := services.NewOperatorAuth(cfg.JWTSecret, cfg.JWTExpiry).IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Printf("expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	})
	return cmd
}

func accountCmd() *cobra.Command {
	var (
		tenant       string
		stripeUserID string
		apiKey       string
		live         bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the Stripe account and its encrypted API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := uuid.New()
			if tenant != "" {
				parsed, err := uuid.Parse(tenant)
				if err != nil {
					return fmt.Errorf("invalid --tenant: %w", err)
				}
				tenantID = parsed
			}

			var (
				cfg      *config.Config
				accounts repositories.ProviderAccountRepository
			)
			return withApp(cmd.Context(), func() error {
				encrypted, err := utils.EncryptSecret(apiKey, cfg.EncryptionKey)
				if err != nil {
					return err
				}
				account := &models.ProviderAccount{
					TenantID:        tenantID,
					StripeUserID:    stripeUserID,
					APIKeyEncrypted: encrypted,
					IsLive:          live,
				}
				if err := accounts.Upsert(cmd.Context(), account); err != nil {
					return err
				}
				fmt.Printf("tenant %s\n", account.TenantID)
				return nil
			}, &cfg, &accounts)
		},
	}
	set.Flags().StringVar(&tenant, "tenant", "", "tenant id (a new one is generated when empty)")
	set.Flags().StringVar(&stripeUserID, "stripe-user-id", "", "Stripe account id (acct_...)")
	set.Flags().StringVar(&apiKey, "api-key", "", "Stripe secret API key")
	set.Flags().BoolVar(&live, "live", false, "live mode account")
	set.MarkFlagRequired("stripe-user-id")
	set.MarkFlagRequired("api-key")

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Stripe account setup",
	}
	cmd.AddCommand(set)
	return cmd
}

func ledgerCmd() *cobra.Command {
	var (
		realmID          string
		accessToken      string
		refreshToken     string
		accessExpiresIn  time.Duration
		refreshExpiresIn time.Duration
	)
	connect := &cobra.Command{
		Use:   "connect",
		Short: "Store QuickBooks OAuth tokens for the configured tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants *services.TenantService
				tokens  repositories.TokenRepository
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				now := time.Now().UTC()
				token := &models.OAuthToken{
					TenantID:              account.TenantID,
					RealmID:               realmID,
					AccessToken:           accessToken,
					RefreshToken:          refreshToken,
					AccessTokenExpiresAt:  now.Add(accessExpiresIn),
					RefreshTokenExpiresAt: now.Add(refreshExpiresIn),
				}
				if err := tokens.Upsert(cmd.Context(), token); err != nil {
					return err
				}
				fmt.Printf("realm %s connected to tenant %s\n", realmID, account.TenantID)
				return nil
			}, &tenants, &tokens)
		},
	}
	connect.Flags().StringVar(&realmID, "realm", "", "QuickBooks company (realm) id")
	connect.Flags().StringVar(&accessToken, "access-token", "", "OAuth access token")
	connect.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token")
	connect.Flags().DurationVar(&accessExpiresIn, "access-expires-in", time.Hour, "access token lifetime")
	connect.Flags().DurationVar(&refreshExpiresIn, "refresh-expires-in", 100*24*time.Hour, "refresh token lifetime")
	connect.MarkFlagRequired("realm")
	connect.MarkFlagRequired("refresh-token")

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "QuickBooks connection",
	}
	cmd.AddCommand(connect)
	return cmd
}

func settingsCmd() *cobra.Command {
	var (
		events         []string
		taxExemptID    string
		depositAccount string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Choose which events are synchronized",
		RunE: func(cmd *cobra.Command, args []string) error {
			mask, err := parseEventMask(events)
			if err != nil {
				return err
			}

			var (
				tenants  *services.TenantService
				settings repositories.SyncSettingsRepository
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				s := &models.SyncSettings{
					TenantID:         account.TenantID,
					Enabled:          mask,
					TaxExemptID:      taxExemptID,
					DepositAccountID: depositAccount,
				}
				if err := settings.Upsert(cmd.Context(), s); err != nil {
					return err
				}
				fmt.Printf("enabled: %v\n", s.Enabled.Types())
				return nil
			}, &tenants, &settings)
		},
	}
	set.Flags().StringSliceVar(&events, "events", []string{"all"}, "event types to enable, or \"all\"")
	set.Flags().StringVar(&taxExemptID, "tax-exempt-id", "", "QuickBooks tax code used for exempt lines")
	set.Flags().StringVar(&depositAccount, "deposit-account", "", "QuickBooks account id for deposits")

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Sync settings",
	}
	cmd.AddCommand(set)
	return cmd
}

func parseEventMask(values []string) (models.EventMask, error) {
	var types []models.EventType
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "all" {
			return models.MaskOf(models.SupportedEventTypes...), nil
		}
		t := models.EventType(v)
		if !t.Supported() {
			return 0, fmt.Errorf("unsupported event type %q", v)
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return 0, errors.New("at least one event type is required")
	}
	return models.MaskOf(types...), nil
}
