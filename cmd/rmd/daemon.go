package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/daemon"
	"github.com/remindful/remindful/internal/dashboard"
	"github.com/remindful/remindful/internal/ui"
)

var daemonFlags struct {
	noDashboard bool
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run the daemon that keeps this device reconciled:

  - Syncs every few minutes while auto-sync is enabled
  - Probes connectivity and syncs immediately when it returns
  - Watches the inbox directory for dropped reminder JSON files
  - Extends the recurring-reminder horizon as time passes
  - Broadcasts sync activity over a WebSocket dashboard

Logs rotate via daemon.log_file when configured; otherwise output goes
to stderr.

Example usage:
  rmd daemon                     # Run with dashboard
  rmd daemon --no-dashboard`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		var logOut io.Writer = os.Stderr
		if e.cfg.Daemon.LogFile != "" {
			logOut = &lumberjack.Logger{
				Filename:   e.cfg.Daemon.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     30, // days
				Compress:   true,
			}
		}
		logger := log.New(logOut, "[daemon] ", log.LstdFlags)

		// Dashboard first, so the sync client's status hook has
		// somewhere to broadcast from the very first round.
		var dash *dashboard.Server
		var handler *dashboard.Handler
		if !daemonFlags.noDashboard && e.cfg.Daemon.DashboardPort > 0 {
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   e.cfg.Daemon.DashboardPort,
				Logger: log.New(logOut, "[dashboard] ", log.LstdFlags),
			})
			if err := dash.Start(); err != nil {
				fatalf("failed to start dashboard: %v", err)
			}
			handler = dashboard.NewHandler(dash, logger)
			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", e.cfg.Daemon.DashboardPort)
		}

		var c *client.Client
		onStatus := func(s client.Status) {
			if handler == nil {
				return
			}
			handler.OnStatus(s)
			handler.OnQueueDepth(e.queue.Len())
			if s == client.StatusSynced && c != nil {
				if result := c.LastResult(); result != nil {
					handler.OnRoundComplete(result)
				}
			}
		}

		syncLogger := log.New(logOut, "[sync] ", log.LstdFlags)
		c, err = e.syncClient(onStatus, syncLogger)
		if err != nil {
			fatalf("%v", err)
		}

		d, err := daemon.New(e.store, c, e.queue, e.materializer(logger),
			e.cfg.Daemon.Inbox, &daemon.Config{
				SyncInterval:     time.Duration(e.cfg.Sync.IntervalMinutes) * time.Minute,
				ProbeInterval:    30 * time.Second,
				HorizonInterval:  6 * time.Hour,
				DebounceInterval: 500 * time.Millisecond,
				AutoSync:         e.cfg.Sync.Auto,
				HealthURL:        e.cfg.Server.URL + "/api/health",
				Logger:           logger,
			})
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Daemon running (sync every %dm, auto-sync %v)\n",
			ui.RenderAccent("●"), e.cfg.Sync.IntervalMinutes, e.cfg.Sync.Auto)
		fmt.Println("Press Ctrl+C to stop...")

		sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Start(sigCtx); err != nil {
			fatalf("daemon error: %v", err)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
			}
		}
		fmt.Println("Daemon stopped")
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonFlags.noDashboard, "no-dashboard", false, "Disable the WebSocket dashboard")

	rootCmd.AddCommand(daemonCmd)
}
