// Package client implements the sync client: a state machine that drains
// the change queue, exchanges it with the remote store, applies the
// remote delta through last-write-wins resolution, and acknowledges
// confirmed changes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/queue"
)

// Status is the observable sync state. Rounds move
// idle → syncing → {synced | error} → idle; offline overrides from any
// non-syncing state when connectivity is absent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// ErrAlreadySyncing is returned when a round is requested while another
// is in flight. Concurrent triggers are rejected, never queued.
var ErrAlreadySyncing = errors.New("sync already in progress")

// ErrOffline is returned when connectivity is absent; no network call is
// attempted.
var ErrOffline = errors.New("offline")

// Applier is the slice of the persistence layer the client needs to
// apply a remote delta and record round completion.
type Applier interface {
	UpsertReminder(ctx context.Context, r *model.Reminder) error
	MarkSynced(ctx context.Context, ids []string, syncedAt time.Time) error
	SaveWatermark(ctx context.Context, lastSync time.Time) error
}

// Result summarizes one completed reconciliation round.
type Result struct {
	// Pushed is the number of queued local changes sent to the remote.
	Pushed int
	// AppliedRemote is how many of them the remote accepted.
	AppliedRemote int
	// AppliedLocal is how many server changes were applied to the
	// local store.
	AppliedLocal int
	// Conflicts were resolved during the round, reported even when
	// resolved automatically.
	Conflicts []Conflict
	// Watermark is the new last-sync timestamp.
	Watermark time.Time
	// Duration is the wall time of the round.
	Duration time.Duration
}

// Config holds sync client configuration.
type Config struct {
	// ClientID identifies this device to the remote.
	ClientID string

	// MaxAttempts bounds transport retries per round (default 3).
	MaxAttempts int

	// InitialBackoff seeds the exponential retry delay (default 500ms).
	InitialBackoff time.Duration

	// Online reports connectivity. nil means always online.
	Online func() bool

	// OnStatus, if set, observes every status transition. Called
	// without internal locks held.
	OnStatus func(Status)

	// Logger for round activity (default: stderr logger).
	Logger *log.Logger
}

// Client orchestrates reconciliation rounds. At most one round is in
// flight at a time, enforced by the status guard.
type Client struct {
	mu         sync.Mutex
	status     Status
	watermark  time.Time
	lastResult *Result
	lastErr    error

	cfg       Config
	queue     *queue.Queue
	store     Applier
	transport Transport
	logger    *log.Logger
}

// New creates a sync client. watermark is the last-sync timestamp loaded
// by the composition root (zero before the first round).
func New(cfg Config, q *queue.Queue, store Applier, transport Transport, watermark time.Time) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Client{
		status:    StatusIdle,
		watermark: watermark,
		cfg:       cfg,
		queue:     q,
		store:     store,
		transport: transport,
		logger:    logger,
	}
}

// Status returns the current state machine status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastResult returns the outcome of the most recent successful round,
// or nil if none has completed.
func (c *Client) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// LastError returns the error of the most recent failed round, cleared
// by the next successful one. Sync errors surface here rather than being
// thrown across the suspension boundary.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Watermark returns the timestamp of the last completed round.
func (c *Client) Watermark() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watermark
}

// MarkOffline records connectivity loss. A round already in flight is
// left to fail through its transport error; otherwise the state machine
// moves to offline until the next round attempt.
func (c *Client) MarkOffline() {
	c.mu.Lock()
	if c.status == StatusSyncing {
		c.mu.Unlock()
		return
	}
	c.status = StatusOffline
	c.mu.Unlock()
	c.notify(StatusOffline)
}

// MarkOnline returns the state machine to idle after connectivity is
// restored.
func (c *Client) MarkOnline() {
	c.mu.Lock()
	if c.status != StatusOffline {
		c.mu.Unlock()
		return
	}
	c.status = StatusIdle
	c.mu.Unlock()
	c.notify(StatusIdle)
}

// Sync runs one reconciliation round: drain the queue, exchange with the
// remote, apply the delta, acknowledge confirmed entries, persist the
// new watermark.
//
// Returns ErrAlreadySyncing when a round is in flight and ErrOffline
// when connectivity is absent (checked before any network call). A round
// that exhausts its retries returns the transport error with the queue
// untouched, so the next round is a safe, full retry.
func (c *Client) Sync(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.status == StatusSyncing {
		c.mu.Unlock()
		return nil, ErrAlreadySyncing
	}
	if c.cfg.Online != nil && !c.cfg.Online() {
		c.status = StatusOffline
		c.mu.Unlock()
		c.notify(StatusOffline)
		return nil, ErrOffline
	}
	c.status = StatusSyncing
	watermark := c.watermark
	c.mu.Unlock()
	c.notify(StatusSyncing)

	start := time.Now()
	result, err := c.runRound(ctx, watermark)

	c.mu.Lock()
	if err != nil {
		c.status = StatusError
		c.lastErr = err
		c.mu.Unlock()
		c.notify(StatusError)
		c.logger.Printf("Sync round failed: %v", err)
	} else {
		result.Duration = time.Since(start)
		c.status = StatusSynced
		c.lastResult = result
		c.lastErr = nil
		c.watermark = result.Watermark
		c.mu.Unlock()
		c.notify(StatusSynced)
		c.logger.Printf("Sync round complete: pushed=%d applied_remote=%d applied_local=%d conflicts=%d",
			result.Pushed, result.AppliedRemote, result.AppliedLocal, len(result.Conflicts))
	}

	// Either terminal state returns to idle; the outcome stays
	// observable through LastResult/LastError.
	c.mu.Lock()
	c.status = StatusIdle
	c.mu.Unlock()
	c.notify(StatusIdle)

	return result, err
}

// runRound performs the exchange and local application for one round.
func (c *Client) runRound(ctx context.Context, watermark time.Time) (*Result, error) {
	changes := c.queue.Drain()

	req := &Request{
		ClientID: c.cfg.ClientID,
		Changes:  changes,
	}
	if !watermark.IsZero() {
		w := watermark
		req.LastSync = &w
	}

	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	// Index drained changes so overlapping server changes can be
	// arbitrated. Entries the remote beat are discarded silently along
	// with the rest of the acknowledgment.
	pending := make(map[string]*model.ChangeRecord, len(changes))
	for _, rec := range changes {
		pending[rec.EntityID] = rec
	}

	applied := 0
	for _, remote := range resp.ServerChanges {
		if local, ok := pending[remote.ID]; ok {
			if Resolve(local.UpdatedAt, remote.UpdatedAt) == ResolutionLocalWins {
				// Our queued change is newer; the remote accepted it,
				// so the stale server copy is not applied.
				continue
			}
		}
		if err := c.store.UpsertReminder(ctx, remote); err != nil {
			return nil, fmt.Errorf("failed to apply server change %s: %w", remote.ID, err)
		}
		applied++
	}

	// Acknowledge every drained entry: accepted changes are confirmed,
	// beaten ones are superseded. No partial acknowledgment — an error
	// above leaves the queue fully intact.
	ackIDs := make([]string, len(changes))
	for i, rec := range changes {
		ackIDs[i] = rec.EntityID
	}
	if err := c.queue.Acknowledge(ackIDs); err != nil {
		return nil, fmt.Errorf("failed to acknowledge changes: %w", err)
	}
	if err := c.store.MarkSynced(ctx, ackIDs, resp.SyncTimestamp); err != nil {
		return nil, fmt.Errorf("failed to mark reminders synced: %w", err)
	}
	if err := c.store.SaveWatermark(ctx, resp.SyncTimestamp); err != nil {
		return nil, fmt.Errorf("failed to persist sync watermark: %w", err)
	}

	return &Result{
		Pushed:        len(changes),
		AppliedRemote: resp.AppliedCount,
		AppliedLocal:  applied,
		Conflicts:     resp.Conflicts,
		Watermark:     resp.SyncTimestamp,
	}, nil
}

// exchange performs the network call with bounded exponential backoff.
func (c *Client) exchange(ctx context.Context, req *Request) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)

	return backoff.RetryWithData(func() (*Response, error) {
		resp, err := c.transport.Exchange(ctx, req)
		if err != nil {
			c.logger.Printf("Sync exchange attempt failed: %v", err)
			return nil, err
		}
		return resp, nil
	}, policy)
}

func (c *Client) notify(s Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(s)
	}
}
