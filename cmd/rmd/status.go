package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/store"
	"github.com/remindful/remindful/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local and sync state",
	Long: `Display the local dataset and sync state.

Shows:
  - Reminder counts by status
  - Recurrence pattern count
  - Pending changes awaiting sync
  - Client id and last sync watermark`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		pending, _ := e.store.CountReminders(ctx, store.ListFilter{Status: model.StatusPending})
		completed, _ := e.store.CountReminders(ctx, store.ListFilter{Status: model.StatusCompleted})
		snoozed, _ := e.store.CountReminders(ctx, store.ListFilter{Status: model.StatusSnoozed})
		patterns, err := e.store.ListPatterns(ctx)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("\n%s remindful status\n\n", ui.RenderAccent("●"))
		fmt.Printf("   Data dir:  %s\n", e.dataDir)
		fmt.Printf("   Reminders: %d pending, %d completed, %d snoozed\n",
			pending, completed, snoozed)
		fmt.Printf("   Patterns:  %d\n", len(patterns))

		depth := e.queue.Len()
		if depth > 0 {
			fmt.Printf("   Queue:     %s\n", ui.RenderWarn(fmt.Sprintf("%d change(s) pending", depth)))
		} else {
			fmt.Printf("   Queue:     empty\n")
		}

		fmt.Printf("   Client id: %s\n", e.state.ClientID)
		if e.cfg.Server.URL == "" {
			fmt.Printf("   Server:    %s\n", ui.RenderDim("not configured"))
		} else {
			fmt.Printf("   Server:    %s\n", e.cfg.Server.URL)
			if e.state.LastSync.IsZero() {
				fmt.Printf("   Last sync: %s\n", ui.RenderDim("never"))
			} else {
				fmt.Printf("   Last sync: %s (%s ago)\n",
					e.state.LastSync.Format(time.RFC3339),
					time.Since(e.state.LastSync).Round(time.Second))
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
