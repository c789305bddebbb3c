package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prudhvinik1/ledgersync/internal/queue"
	"github.com/spf13/cobra"
)

var errInlineMode = errors.New("queue is disabled (QUEUE_MODE=inline)")

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the event queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *queue.Queue
			return withApp(cmd.Context(), func() error {
				if q == nil {
					return errInlineMode
				}
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(stats)
			}, &q)
		},
	})

	var limit int64
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List jobs that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *queue.Queue
			return withApp(cmd.Context(), func() error {
				if q == nil {
					return errInlineMode
				}
				jobs, err := q.DeadJobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "JOB\tEVENT\tTYPE\tATTEMPTS\tUPDATED\tLAST ERROR")
				for _, j := range jobs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						j.ID, j.EventID, j.EventType, j.Attempts, j.UpdatedAt.Format(time.RFC3339), j.LastError)
				}
				return w.Flush()
			}, &q)
		},
	}
	dead.Flags().Int64VarP(&limit, "limit", "n", 50, "maximum jobs")
	cmd.AddCommand(dead)

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Move every dead job back onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *queue.Queue
			return withApp(cmd.Context(), func() error {
				if q == nil {
					return errInlineMode
				}
				n, err := q.RequeueDead(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("requeued %d jobs\n", n)
				return nil
			}, &q)
		},
	})
	return cmd
}
