package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/ledgersync/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var Version = "dev"

func main() {
	godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the Stripe to QuickBooks sync engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(tokensCmd())
	rootCmd.AddCommand(taxRatesCmd())
	rootCmd.AddCommand(depositAccountsCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(queueCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp starts the shared core, fills targets from it and runs fn.
func withApp(ctx context.Context, fn func() error, targets ...any) error {
	core := fx.New(app.Core, fx.Populate(targets...))

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := core.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = core.Stop(stopCtx)
	}()

	return fn()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
