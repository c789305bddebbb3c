package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/models"
	"github.com/prudhvinik1/ledgersync/internal/processors"
	"github.com/prudhvinik1/ledgersync/internal/repositories"
	"github.com/prudhvinik1/ledgersync/internal/services"
	"github.com/spf13/cobra"
)

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [event-id]",
		Short: "Fetch an event from Stripe and process it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants    *services.TenantService
				dispatcher *processors.Dispatcher
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				record, err := dispatcher.Replay(cmd.Context(), account.TenantID, args[0])
				if record == nil {
					if err != nil {
						return err
					}
					fmt.Println("event type is disabled or not handled")
					return nil
				}
				if printErr := printJSON(record); printErr != nil {
					return printErr
				}
				return err
			}, &tenants, &dispatcher)
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		status    string
		eventType string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sync history",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tenants *services.TenantService
				history repositories.SyncHistoryRepository
			)
			return withApp(cmd.Context(), func() error {
				account, err := tenants.ProviderAccount(cmd.Context())
				if err != nil {
					return err
				}
				records, err := history.List(cmd.Context(), models.HistoryFilter{
					TenantID:  account.TenantID,
					Status:    models.SyncStatus(status),
					EventType: models.EventType(eventType),
					Limit:     limit,
				})
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CREATED\tEVENT\tTYPE\tSTATUS\tLEDGER ID\tMESSAGE")
				for _, r := range records {
					ledgerID := ""
					if r.LedgerEntityID != nil {
						ledgerID = *r.LedgerEntityID
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.CreatedAt.Format(time.RFC3339), r.ProviderEventID, r.EventType, r.Status, ledgerID, r.Message)
				}
				return w.Flush()
			}, &tenants, &history)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (success, skipped, partial_success, failed, pending)")
	cmd.Flags().StringVar(&eventType, "event-type", "", "filter by event type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum records")
	return cmd
}
