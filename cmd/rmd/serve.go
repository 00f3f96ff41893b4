package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/server"
	"github.com/remindful/remindful/internal/ui"
)

var serveFlags struct {
	port  int
	token string
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run a self-hosted sync server",
	Long: `Run the sync server other devices reconcile against. The server
stores its dataset in the same .remindful database format the client
uses, and applies incoming changes with the same last-write-wins
arbitration.

Clients authenticate with a bearer token when serve.token is set.

Example usage:
  rmd serve                      # Listen on the configured port
  rmd serve --port 9000 --token secret`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		port := e.cfg.Serve.Port
		if cmd.Flags().Changed("port") {
			port = serveFlags.port
		}
		token := e.cfg.Serve.Token
		if cmd.Flags().Changed("token") {
			token = serveFlags.token
		}

		srv := server.New(e.store, &server.Config{
			Port:  port,
			Token: token,
		})
		if err := srv.Start(); err != nil {
			fatalf("failed to start server: %v", err)
		}

		fmt.Printf("%s Sync server listening on http://localhost:%d\n", ui.RenderAccent("●"), port)
		fmt.Printf("   Sync endpoint: POST /api/sync\n")
		fmt.Printf("   Health check:  GET /api/health\n")
		if token == "" {
			fmt.Printf("   %s\n", ui.RenderWarn("Warning: no auth token configured"))
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-sigCtx.Done()

		fmt.Println("\nShutting down...")
		if err := srv.Stop(); err != nil {
			fatalf("shutdown error: %v", err)
		}
		fmt.Println("Sync server stopped")
	},
}

func init() {
	serveCmd.Flags().IntVarP(&serveFlags.port, "port", "p", 8787, "Port to listen on")
	serveCmd.Flags().StringVar(&serveFlags.token, "token", "", "Bearer token clients must present")

	rootCmd.AddCommand(serveCmd)
}
