// Package queue implements the pending-change store: an ordered,
// capacity-bounded queue of local mutations awaiting remote
// acknowledgment, with at most one live record per entity id.
package queue

import (
	"log"
	"os"
	"sync"

	"github.com/remindful/remindful/internal/model"
)

// DefaultCapacity bounds the queue when no explicit capacity is given.
const DefaultCapacity = 500

// Journal is the persistence port for the queue. The SQLite store
// implements it; tests run with a nil journal (memory only).
type Journal interface {
	// JournalPut inserts or replaces the pending change for an entity.
	JournalPut(rec *model.ChangeRecord) error
	// JournalRemove deletes the journaled changes for the given ids.
	JournalRemove(ids []string) error
	// JournalLoad restores all pending changes in enqueue order.
	JournalLoad() ([]*model.ChangeRecord, error)
}

// Queue is the in-memory view of the change journal. All methods are
// safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	capacity int
	recs     map[string]*model.ChangeRecord
	order    []string // entity ids in enqueue order, oldest first
	journal  Journal
	logger   *log.Logger
}

// New creates a queue with the given capacity (0 means DefaultCapacity)
// and persistence journal (nil means memory only). If logger is nil, a
// default logger writing to stderr is used.
func New(capacity int, journal Journal, logger *log.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{
		capacity: capacity,
		recs:     make(map[string]*model.ChangeRecord),
		journal:  journal,
		logger:   logger,
	}
}

// Load rebuilds the in-memory queue from the journal. Call once at
// startup, before any Enqueue.
func (q *Queue) Load() error {
	if q.journal == nil {
		return nil
	}
	recs, err := q.journal.JournalLoad()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = make(map[string]*model.ChangeRecord, len(recs))
	q.order = q.order[:0]
	for _, rec := range recs {
		q.recs[rec.EntityID] = rec
		q.order = append(q.order, rec.EntityID)
	}
	return nil
}

// Enqueue records a pending change. A record queued earlier for the same
// entity is replaced in place, keeping its position; a new entity appends.
// Past the capacity bound the oldest unacknowledged entry is evicted and
// logged — the one accepted case of silent data loss.
func (q *Queue) Enqueue(rec *model.ChangeRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.recs[rec.EntityID]; ok {
		// Replace, not append: the position and queued_at of the first
		// version are kept so eviction order stays stable.
		rec.QueuedAt = existing.QueuedAt
		q.recs[rec.EntityID] = rec
	} else {
		q.recs[rec.EntityID] = rec
		q.order = append(q.order, rec.EntityID)
	}

	if q.journal != nil {
		if err := q.journal.JournalPut(rec); err != nil {
			return err
		}
	}

	for len(q.order) > q.capacity {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.recs, oldest)
		q.logger.Printf("WARNING: queue over capacity (%d), evicting oldest unacknowledged change for %s", q.capacity, oldest)
		if q.journal != nil {
			if err := q.journal.JournalRemove([]string{oldest}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drain returns a snapshot of the current entries in enqueue order
// without clearing them, so a failed sync round can retry without data
// loss. Entries are removed only by Acknowledge.
func (q *Queue) Drain() []*model.ChangeRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*model.ChangeRecord, 0, len(q.order))
	for _, id := range q.order {
		if rec, ok := q.recs[id]; ok {
			snapshot = append(snapshot, rec)
		}
	}
	return snapshot
}

// Acknowledge removes entries once the remote confirms them.
// Unknown ids are ignored.
func (q *Queue) Acknowledge(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	acked := make(map[string]bool, len(ids))
	var removed []string
	for _, id := range ids {
		if _, ok := q.recs[id]; ok {
			delete(q.recs, id)
			acked[id] = true
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		kept := q.order[:0]
		for _, id := range q.order {
			if !acked[id] {
				kept = append(kept, id)
			}
		}
		q.order = kept
	}

	if q.journal != nil && len(removed) > 0 {
		return q.journal.JournalRemove(removed)
	}
	return nil
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
