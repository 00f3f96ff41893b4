// Package daemon provides the background scheduler that keeps a device
// reconciled without user interaction.
//
// The daemon:
// 1. Runs periodic sync rounds while auto-sync is enabled
// 2. Probes the remote for connectivity and triggers a round on recovery
// 3. Watches an inbox directory for dropped reminder JSON files
// 4. Re-materializes recurring reminders as the horizon advances
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/model"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run an automatic sync round.
	SyncInterval time.Duration

	// ProbeInterval is how often to check remote connectivity.
	ProbeInterval time.Duration

	// HorizonInterval is how often to re-materialize recurring
	// reminders so the rolling window stays filled.
	HorizonInterval time.Duration

	// DebounceInterval is how long to wait before ingesting inbox
	// files. This batches rapid writes together.
	DebounceInterval time.Duration

	// AutoSync enables the periodic sync loop at startup.
	AutoSync bool

	// Probe overrides the connectivity check. nil selects an HTTP
	// health probe against HealthURL.
	Probe func(ctx context.Context) bool

	// HealthURL is the remote health endpoint for the default probe.
	HealthURL string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		ProbeInterval:    30 * time.Second,
		HorizonInterval:  6 * time.Hour,
		DebounceInterval: 500 * time.Millisecond,
		AutoSync:         true,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Syncer is the slice of the sync client the daemon drives.
type Syncer interface {
	Sync(ctx context.Context) (*client.Result, error)
	MarkOffline()
	MarkOnline()
	Status() client.Status
}

// Store is the slice of the persistence layer the daemon needs to
// ingest inbox files and refresh the recurrence horizon.
type Store interface {
	UpsertReminder(ctx context.Context, r *model.Reminder) error
	ListPatterns(ctx context.Context) ([]*model.RecurrencePattern, error)
	TemplateFor(ctx context.Context, recurrenceID string) (*model.Reminder, error)
}

// Materializer turns a recurrence pattern into concrete instances.
type Materializer interface {
	Materialize(ctx context.Context, template *model.Reminder, p *model.RecurrencePattern, now time.Time) ([]string, error)
}

// Enqueuer records a local change for the next sync round.
type Enqueuer interface {
	Enqueue(rec *model.ChangeRecord) error
}

// Daemon orchestrates sync scheduling, connectivity monitoring, inbox
// ingestion, and horizon refresh.
type Daemon struct {
	store        Store
	syncer       Syncer
	queue        Enqueuer
	materializer Materializer
	inboxDir     string
	config       *Config

	watcher  *fsnotify.Watcher
	pending  map[string]time.Time // inbox path -> queued timestamp
	pendingM sync.Mutex

	autoSyncM sync.Mutex
	autoSync  bool
	online    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. inboxDir may be empty to disable inbox
// ingestion. Use Start() to begin scheduling.
func New(store Store, syncer Syncer, q Enqueuer, materializer Materializer, inboxDir string, config *Config) (*Daemon, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	var watcher *fsnotify.Watcher
	if inboxDir != "" {
		var err error
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		store:        store,
		syncer:       syncer,
		queue:        q,
		materializer: materializer,
		inboxDir:     inboxDir,
		config:       config,
		watcher:      watcher,
		pending:      make(map[string]time.Time),
		autoSync:     config.AutoSync,
		online:       true,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Refresh the recurrence horizon once up front
// 2. Ingest any files already sitting in the inbox
// 3. Start the sync, probe, horizon, and inbox goroutines
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.RefreshHorizon(ctx); err != nil {
		return fmt.Errorf("initial horizon refresh failed: %w", err)
	}

	loops := 3
	if d.watcher != nil {
		if err := d.watcher.Add(d.inboxDir); err != nil {
			return fmt.Errorf("failed to watch inbox directory: %w", err)
		}
		d.config.Logger.Printf("Watching inbox: %s", d.inboxDir)
		d.ingestExisting(ctx)
		loops += 2
	}

	d.wg.Add(loops)
	go d.syncLoop()
	go d.probeLoop()
	go d.horizonLoop()
	if d.watcher != nil {
		go d.watchInboxEvents()
		go d.processPendingLoop()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Close(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// SetAutoSync enables or disables the periodic sync loop. The probe and
// inbox loops keep running either way.
func (d *Daemon) SetAutoSync(enabled bool) {
	d.autoSyncM.Lock()
	d.autoSync = enabled
	d.autoSyncM.Unlock()
	d.config.Logger.Printf("Auto-sync %v", enabled)
}

// AutoSync reports whether the periodic sync loop is enabled.
func (d *Daemon) AutoSync() bool {
	d.autoSyncM.Lock()
	defer d.autoSyncM.Unlock()
	return d.autoSync
}

// TriggerSync runs one sync round immediately, regardless of auto-sync.
// A round already in flight makes this a no-op.
func (d *Daemon) TriggerSync(ctx context.Context) {
	if _, err := d.syncer.Sync(ctx); err != nil {
		switch err {
		case client.ErrAlreadySyncing:
			// Fine; the in-flight round covers us.
		case client.ErrOffline:
			d.config.Logger.Println("Sync skipped: offline")
		default:
			d.config.Logger.Printf("Sync failed: %v", err)
		}
	}
}

// syncLoop runs periodic sync rounds while auto-sync is enabled.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if !d.AutoSync() {
				continue
			}
			d.TriggerSync(d.ctx)
		}
	}
}

// probeLoop monitors remote connectivity and flips the sync client
// between offline and online. An offline-to-online transition triggers
// an immediate round so queued changes drain without waiting for the
// next tick.
func (d *Daemon) probeLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			up := d.probe()

			d.autoSyncM.Lock()
			was := d.online
			d.online = up
			d.autoSyncM.Unlock()

			if was == up {
				continue
			}
			if up {
				d.config.Logger.Println("Connectivity restored")
				d.syncer.MarkOnline()
				d.TriggerSync(d.ctx)
			} else {
				d.config.Logger.Println("Connectivity lost")
				d.syncer.MarkOffline()
			}
		}
	}
}

// Online reports the last probe outcome.
func (d *Daemon) Online() bool {
	d.autoSyncM.Lock()
	defer d.autoSyncM.Unlock()
	return d.online
}

func (d *Daemon) probe() bool {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Second)
	defer cancel()

	if d.config.Probe != nil {
		return d.config.Probe(ctx)
	}
	if d.config.HealthURL == "" {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.config.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// horizonLoop keeps the materialized window ahead of the clock.
func (d *Daemon) horizonLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.HorizonInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.RefreshHorizon(d.ctx); err != nil {
				d.config.Logger.Printf("Horizon refresh failed: %v", err)
			}
		}
	}
}

// RefreshHorizon re-materializes every recurrence pattern against the
// current clock. Safe to call repeatedly; materialization only creates
// instances that do not exist yet.
func (d *Daemon) RefreshHorizon(ctx context.Context) error {
	if d.materializer == nil {
		return nil
	}

	patterns, err := d.store.ListPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list patterns: %w", err)
	}

	total := 0
	for _, p := range patterns {
		template, err := d.store.TemplateFor(ctx, p.ID)
		if err != nil {
			d.config.Logger.Printf("Warning: pattern %s has no template: %v", p.ID, err)
			continue
		}
		created, err := d.materializer.Materialize(ctx, template, p, time.Now())
		if err != nil {
			d.config.Logger.Printf("Warning: failed to materialize pattern %s: %v", p.ID, err)
			continue
		}
		total += len(created)
	}

	if total > 0 {
		d.config.Logger.Printf("Horizon refresh created %d instances", total)
	}
	return nil
}

// watchInboxEvents monitors the inbox directory and queues new files.
func (d *Daemon) watchInboxEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.pendingM.Lock()
			d.pending[event.Name] = time.Now()
			d.pendingM.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPendingLoop ingests queued inbox files after they settle.
func (d *Daemon) processPendingLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPending()
		}
	}
}

func (d *Daemon) processPending() {
	d.pendingM.Lock()
	ready := []string{}
	now := time.Now()
	for path, queuedAt := range d.pending {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, path)
		delete(d.pending, path)
	}
	d.pendingM.Unlock()

	for _, path := range ready {
		if err := d.IngestFile(d.ctx, path); err != nil {
			d.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
	}
}

// ingestExisting sweeps files already in the inbox at startup.
func (d *Daemon) ingestExisting(ctx context.Context) {
	entries, err := os.ReadDir(d.inboxDir)
	if err != nil {
		d.config.Logger.Printf("Error reading inbox: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(d.inboxDir, entry.Name())
		if err := d.IngestFile(ctx, path); err != nil {
			d.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
	}
}
