package recur

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/remindful/remindful/internal/model"
)

// DefaultHorizonDays is the forward-looking window within which
// occurrences are pre-materialized.
const DefaultHorizonDays = 90

// InstanceStore is the slice of the persistence layer the materializer
// needs.
type InstanceStore interface {
	// InstanceDates returns the already-materialized occurrence dates
	// for a pattern, keyed by original_due_date.
	InstanceDates(ctx context.Context, recurrenceID string) (map[string]bool, error)
	// UpsertReminder persists a reminder row.
	UpsertReminder(ctx context.Context, r *model.Reminder) error
}

// Enqueuer records each new instance as a pending local create.
type Enqueuer interface {
	Enqueue(rec *model.ChangeRecord) error
}

// Materializer converts expanded occurrences into persisted reminder
// rows, idempotently: re-running over the same horizon is a no-op for
// dates that already have an instance.
type Materializer struct {
	store       InstanceStore
	queue       Enqueuer
	horizonDays int
	logger      *log.Logger
}

// NewMaterializer creates a Materializer. horizonDays <= 0 selects
// DefaultHorizonDays; a nil logger selects a stderr logger.
func NewMaterializer(store InstanceStore, queue Enqueuer, horizonDays int, logger *log.Logger) *Materializer {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[recur] ", log.LstdFlags)
	}
	return &Materializer{
		store:       store,
		queue:       queue,
		horizonDays: horizonDays,
		logger:      logger,
	}
}

// Materialize expands the pattern anchored at the template's due date and
// persists every occurrence that has no instance yet, copying the
// template's content fields. Each new row is flagged as a recurring
// instance, back-referenced to the pattern through recurrence_id and
// original_due_date, and queued as a local create.
//
// The template's own due date counts as covered: the template row is the
// first occurrence, so no duplicate instance is created for it. Returns
// the ids of newly created instances.
func (m *Materializer) Materialize(ctx context.Context, template *model.Reminder, p *model.RecurrencePattern, now time.Time) ([]string, error) {
	anchor := Date(now)
	if template.DueDate != "" {
		parsed, err := ParseDate(template.DueDate)
		if err != nil {
			return nil, fmt.Errorf("invalid template due_date %q: %w", template.DueDate, err)
		}
		anchor = parsed
	}
	until := Date(now).AddDate(0, 0, m.horizonDays)

	occurrences, err := Expand(p, anchor, until)
	if err != nil {
		return nil, err
	}

	existing, err := m.store.InstanceDates(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if template.DueDate != "" {
		existing[template.DueDate] = true
	}

	createdAt := now.UTC()
	var created []string
	for _, occ := range occurrences {
		date := occ.Format(model.DateLayout)
		if existing[date] {
			continue
		}

		instance := &model.Reminder{
			ID:                  uuid.NewString(),
			Text:                template.Text,
			DueDate:             date,
			DueTime:             template.DueTime,
			TimeRequired:        template.TimeRequired,
			LocationName:        template.LocationName,
			LocationAddress:     template.LocationAddress,
			LocationLat:         template.LocationLat,
			LocationLng:         template.LocationLng,
			LocationRadius:      template.LocationRadius,
			Priority:            template.Priority,
			Category:            template.Category,
			Status:              model.StatusPending,
			RecurrenceID:        p.ID,
			IsRecurringInstance: true,
			OriginalDueDate:     date,
			Source:              template.Source,
			CreatedAt:           createdAt,
			UpdatedAt:           createdAt,
		}

		if err := m.store.UpsertReminder(ctx, instance); err != nil {
			return created, fmt.Errorf("failed to materialize instance for %s: %w", date, err)
		}

		if m.queue != nil {
			rec, err := model.NewChange(model.ActionCreate, instance)
			if err != nil {
				return created, err
			}
			if err := m.queue.Enqueue(rec); err != nil {
				return created, err
			}
		}

		created = append(created, instance.ID)
	}

	if len(created) > 0 {
		m.logger.Printf("Materialized %d instance(s) for pattern %s", len(created), p.ID)
	}
	return created, nil
}
