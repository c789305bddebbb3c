package main

import (
	"fmt"

	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/spf13/cobra"
)

func tokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "QuickBooks OAuth token maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Refresh access tokens that expire soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			var maint *services.Maintenance
			return withApp(cmd.Context(), func() error {
				result, err := maint.SweepTokens(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("checked %d, refreshed %d, failed %d\n", result.Checked, result.Refreshed, result.Failed)
				return nil
			}, &maint)
		},
	})
	return cmd
}

func taxRatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tax-rates",
		Short: "Tax rate cache maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Reload tax rates and codes from QuickBooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants *services.TenantService
				maint   *services.Maintenance
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				n, err := maint.RefreshTaxRates(cmd.Context(), account.TenantID)
				if err != nil {
					return err
				}
				fmt.Printf("cached %d tax rates\n", n)
				return nil
			}, &tenants, &maint)
		},
	})
	return cmd
}

func depositAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit-accounts",
		Short: "Deposit account cache maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Reload deposit accounts from QuickBooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants *services.TenantService
				maint   *services.Maintenance
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				n, err := maint.RefreshDepositAccounts(cmd.Context(), account.TenantID)
				if err != nil {
					return err
				}
				fmt.Printf("cached %d deposit accounts\n", n)
				return nil
			}, &tenants, &maint)
		},
	})
	return cmd
}
