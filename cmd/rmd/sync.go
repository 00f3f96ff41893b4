package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync round now",
	Long: `Run one reconciliation round against the configured sync server:
queued local changes are pushed, the server's delta is applied, and
conflicts are resolved last-write-wins.

Requires server.url (and usually server.token) in config.toml.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		c, err := e.syncClient(nil, nil)
		if err != nil {
			fatalf("%v", err)
		}

		pending := e.queue.Len()
		fmt.Printf("%s Syncing %d pending change(s)...\n", ui.RenderAccent("🔄"), pending)

		result, err := c.Sync(ctx)
		if err != nil {
			switch {
			case errors.Is(err, client.ErrOffline):
				fmt.Fprintf(os.Stderr, "%s Offline; changes stay queued for the next round\n",
					ui.RenderWarn("⚠"))
				os.Exit(1)
			case errors.Is(err, client.ErrAlreadySyncing):
				fmt.Fprintln(os.Stderr, "A sync round is already in progress")
				os.Exit(1)
			default:
				fatalf("sync failed: %v", err)
			}
		}

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"),
			result.Duration.Round(time.Millisecond))
		fmt.Printf("   Pushed:  %d (accepted %d)\n", result.Pushed, result.AppliedRemote)
		fmt.Printf("   Pulled:  %d\n", result.AppliedLocal)
		if len(result.Conflicts) > 0 {
			fmt.Printf("   Conflicts resolved: %d\n", len(result.Conflicts))
			for _, c := range result.Conflicts {
				fmt.Printf("     %s %s (local %s vs remote %s)\n",
					shortID(c.ID), c.Resolution,
					c.LocalUpdatedAt.Format(time.RFC3339),
					c.RemoteUpdatedAt.Format(time.RFC3339))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
