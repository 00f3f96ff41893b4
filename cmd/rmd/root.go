package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/config"
	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/queue"
	"github.com/remindful/remindful/internal/recur"
	"github.com/remindful/remindful/internal/store"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:   "rmd",
	Short: "Offline-first reminders with recurring schedules",
	Long: `remindful keeps your reminders on-device in SQLite and reconciles
them with a sync server whenever connectivity allows. Everything works
offline; changes queue up and drain on the next successful round.

Data lives in a .remindful directory (current directory tree or $HOME).
Settings come from .remindful/config.toml, overridable via REMINDFUL_*
environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "",
		"Override the .remindful data directory")

	rootCmd.AddGroup(
		&cobra.Group{ID: "reminders", Title: "Reminders:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

// env bundles the wiring shared by every command: config, store, change
// queue, and sync state.
type env struct {
	cfg     *config.Config
	dataDir string
	store   *store.Store
	queue   *queue.Queue
	state   *store.SyncState
}

// openEnv locates the data directory, opens the database, and restores
// the change queue from its journal.
func openEnv(ctx context.Context) (*env, error) {
	dataDir := dataDirFlag
	if dataDir == "" {
		var err error
		dataDir, err = config.EnsureDataDir()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(config.DatabasePath(dataDir))
	if err != nil {
		return nil, err
	}
	if err := st.InitSchemaContext(ctx); err != nil {
		st.Close()
		return nil, err
	}

	state, err := st.LoadSyncState(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	q := queue.New(cfg.Sync.QueueCapacity, st, nil)
	if err := q.Load(); err != nil {
		st.Close()
		return nil, err
	}

	return &env{
		cfg:     cfg,
		dataDir: dataDir,
		store:   st,
		queue:   q,
		state:   state,
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

// syncClient builds the sync client, or an error when no server is
// configured.
func (e *env) syncClient(onStatus func(client.Status), logger *log.Logger) (*client.Client, error) {
	if e.cfg.Server.URL == "" {
		return nil, fmt.Errorf("no sync server configured (set server.url in %s/%s)",
			e.dataDir, config.FileName)
	}
	transport := client.NewHTTPTransport(e.cfg.Server.URL, e.cfg.Server.Token, 0)
	return client.New(client.Config{
		ClientID:    e.state.ClientID,
		MaxAttempts: e.cfg.Sync.MaxAttempts,
		OnStatus:    onStatus,
		Logger:      logger,
	}, e.queue, e.store, transport, e.state.LastSync), nil
}

// materializer builds the instance materializer wired to this env's
// store and queue.
func (e *env) materializer(logger *log.Logger) *recur.Materializer {
	return recur.NewMaterializer(e.store, e.queue, e.cfg.Recurrence.HorizonDays, logger)
}

// record stores a reminder mutation and queues it for the next round.
func (e *env) record(ctx context.Context, action string, rem *model.Reminder) error {
	if action == model.ActionDelete {
		if err := e.store.DeleteReminder(ctx, rem.ID); err != nil {
			return err
		}
	} else {
		if err := e.store.UpsertReminder(ctx, rem); err != nil {
			return err
		}
	}
	rec, err := model.NewChange(action, rem)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(rec)
}

// fatalf prints an error and exits, the uniform failure path for
// command Run functions.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID trims a UUID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// commandContext returns the background context commands run under.
func commandContext() context.Context {
	return context.Background()
}
