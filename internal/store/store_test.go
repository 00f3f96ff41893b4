package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/remindful/remindful/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return st
}

func newReminder(id string, updatedAt time.Time) *model.Reminder {
	return &model.Reminder{
		ID:        id,
		Text:      "reminder " + id,
		Priority:  model.PriorityChill,
		Status:    model.StatusPending,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestUpsertAndGetReminder(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	lat := 37.77
	rem := newReminder("a", now)
	rem.DueDate = "2025-11-03"
	rem.DueTime = "09:00:00"
	rem.Category = "errands"
	rem.LocationName = "Hardware store"
	rem.LocationLat = &lat
	rem.LocationRadius = 150

	if err := st.UpsertReminder(ctx, rem); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := st.GetReminder(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Text != rem.Text || got.DueDate != rem.DueDate || got.Category != rem.Category {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.LocationLat == nil || *got.LocationLat != lat {
		t.Errorf("expected lat %v, got %v", lat, got.LocationLat)
	}
	if got.LocationRadius != 150 {
		t.Errorf("expected radius 150, got %d", got.LocationRadius)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("expected updated_at %v, got %v", now, got.UpdatedAt)
	}
}

func TestUpsertPreservesCreatedAt(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	rem := newReminder("a", created)
	if err := st.UpsertReminder(ctx, rem); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	later := created.Add(30 * time.Minute)
	update := newReminder("a", later)
	update.Text = "updated text"
	update.CreatedAt = later // must be ignored on conflict
	if err := st.UpsertReminder(ctx, update); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := st.GetReminder(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at must survive updates: expected %v, got %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
	}
	if got.Text != "updated text" {
		t.Errorf("expected updated text, got %q", got.Text)
	}
}

func TestGetReminderNotFound(t *testing.T) {
	st := testStore(t)
	if _, err := st.GetReminder(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteReminderIdempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rem := newReminder("a", time.Now().UTC())
	if err := st.UpsertReminder(ctx, rem); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := st.DeleteReminder(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	// Deleting again (or deleting a row that never existed) is fine.
	if err := st.DeleteReminder(ctx, "a"); err != nil {
		t.Errorf("repeat delete should be a no-op, got %v", err)
	}
	if _, err := st.GetReminder(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListRemindersFilters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := newReminder("a", now)
	b := newReminder("b", now)
	b.Status = model.StatusCompleted
	c := newReminder("c", now)
	c.Category = "work"
	c.Priority = model.PriorityUrgent

	for _, rem := range []*model.Reminder{a, b, c} {
		if err := st.UpsertReminder(ctx, rem); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	pending, err := st.ListReminders(ctx, ListFilter{Status: model.StatusPending})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}

	urgent, err := st.ListReminders(ctx, ListFilter{Priority: model.PriorityUrgent, Category: "work"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(urgent) != 1 || urgent[0].ID != "c" {
		t.Errorf("expected only c, got %v", urgent)
	}

	count, err := st.CountReminders(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 total, got %d", count)
	}
}

func TestChangedSinceStrictlyAfter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	old := newReminder("old", base.Add(-time.Hour))
	at := newReminder("at", base)
	after := newReminder("after", base.Add(time.Hour))
	for _, rem := range []*model.Reminder{old, at, after} {
		if err := st.UpsertReminder(ctx, rem); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	changed, err := st.ChangedSince(ctx, base)
	if err != nil {
		t.Fatalf("ChangedSince failed: %v", err)
	}
	if len(changed) != 1 || changed[0].ID != "after" {
		t.Errorf("expected only strictly-later rows, got %v", changed)
	}
}

func TestMarkSynced(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for _, id := range []string{"a", "b"} {
		if err := st.UpsertReminder(ctx, newReminder(id, now)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	syncedAt := now.Add(time.Minute)
	if err := st.MarkSynced(ctx, []string{"a"}, syncedAt); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	a, _ := st.GetReminder(ctx, "a")
	if a.SyncedAt == nil || !a.SyncedAt.Equal(syncedAt) {
		t.Errorf("expected synced_at %v, got %v", syncedAt, a.SyncedAt)
	}
	b, _ := st.GetReminder(ctx, "b")
	if b.SyncedAt != nil {
		t.Errorf("b should not be marked synced, got %v", b.SyncedAt)
	}
}

func TestPatternCRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	p := &model.RecurrencePattern{
		ID:         "pat-1",
		Frequency:  model.FreqWeekly,
		Interval:   2,
		DaysOfWeek: "0,4",
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := st.CreatePattern(ctx, p); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := st.GetPattern(ctx, "pat-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Frequency != p.Frequency || got.Interval != p.Interval || got.DaysOfWeek != p.DaysOfWeek {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	// Invalid patterns are rejected at the source.
	bad := &model.RecurrencePattern{ID: "pat-2", Frequency: model.FreqDaily, Interval: 0}
	if err := st.CreatePattern(ctx, bad); err == nil {
		t.Error("expected validation error for interval 0")
	}

	if err := st.DeletePattern(ctx, "pat-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := st.GetPattern(ctx, "pat-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePatternUnlinksInstances(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	p := &model.RecurrencePattern{
		ID:        "pat-1",
		Frequency: model.FreqDaily,
		Interval:  1,
		CreatedAt: now,
	}
	if err := st.CreatePattern(ctx, p); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	inst := newReminder("i1", now)
	inst.RecurrenceID = p.ID
	inst.IsRecurringInstance = true
	inst.OriginalDueDate = "2025-11-03"
	inst.DueDate = "2025-11-03"
	if err := st.UpsertReminder(ctx, inst); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := st.DeletePattern(ctx, p.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	got, err := st.GetReminder(ctx, "i1")
	if err != nil {
		t.Fatalf("instance should survive pattern deletion: %v", err)
	}
	if got.RecurrenceID != "" {
		t.Errorf("expected instance unlinked, recurrence_id = %q", got.RecurrenceID)
	}
}

func TestInstanceDates(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, d := range []string{"2025-11-03", "2025-11-04"} {
		inst := newReminder("i-"+d, now)
		inst.RecurrenceID = "pat-1"
		inst.IsRecurringInstance = true
		inst.OriginalDueDate = d
		inst.DueDate = d
		if err := st.UpsertReminder(ctx, inst); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	// A plain reminder never shows up in instance dates.
	if err := st.UpsertReminder(ctx, newReminder("plain", now)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	dates, err := st.InstanceDates(ctx, "pat-1")
	if err != nil {
		t.Fatalf("InstanceDates failed: %v", err)
	}
	if len(dates) != 2 || !dates["2025-11-03"] || !dates["2025-11-04"] {
		t.Errorf("unexpected instance dates: %v", dates)
	}
}

func TestSyncStatePersistsClientID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	first, err := st.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if first.ClientID == "" {
		t.Fatal("expected a generated client id")
	}
	if !first.LastSync.IsZero() {
		t.Errorf("expected zero watermark before first round, got %v", first.LastSync)
	}

	watermark := time.Now().UTC().Truncate(time.Second)
	if err := st.SaveWatermark(ctx, watermark); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second, err := st.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if second.ClientID != first.ClientID {
		t.Errorf("client id must be stable: %q vs %q", first.ClientID, second.ClientID)
	}
	if !second.LastSync.Equal(watermark) {
		t.Errorf("expected watermark %v, got %v", watermark, second.LastSync)
	}
}

func TestJournalRoundtrip(t *testing.T) {
	st := testStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	recA := &model.ChangeRecord{
		EntityID:  "a",
		Action:    model.ActionCreate,
		Payload:   []byte(`{"id":"a"}`),
		UpdatedAt: now,
		QueuedAt:  now.Add(-2 * time.Second),
	}
	recB := &model.ChangeRecord{
		EntityID:  "b",
		Action:    model.ActionDelete,
		UpdatedAt: now,
		QueuedAt:  now.Add(-time.Second),
	}
	for _, rec := range []*model.ChangeRecord{recB, recA} {
		if err := st.JournalPut(rec); err != nil {
			t.Fatalf("put failed: %v", err)
		}
	}

	recs, err := st.JournalLoad()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	// Ordered by queued_at, oldest first.
	if recs[0].EntityID != "a" || recs[1].EntityID != "b" {
		t.Errorf("unexpected order: %s, %s", recs[0].EntityID, recs[1].EntityID)
	}
	if string(recs[0].Payload) != `{"id":"a"}` {
		t.Errorf("payload mismatch: %s", recs[0].Payload)
	}
	if recs[1].Payload != nil {
		t.Errorf("delete payload should be nil, got %s", recs[1].Payload)
	}

	// Replacing a journaled change keeps one row per entity.
	recA2 := &model.ChangeRecord{
		EntityID:  "a",
		Action:    model.ActionUpdate,
		Payload:   []byte(`{"id":"a","v":2}`),
		UpdatedAt: now.Add(time.Second),
		QueuedAt:  recA.QueuedAt,
	}
	if err := st.JournalPut(recA2); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	recs, err = st.JournalLoad()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records after replace, got %d", len(recs))
	}
	if recs[0].Action != model.ActionUpdate {
		t.Errorf("expected replaced action update, got %q", recs[0].Action)
	}

	if err := st.JournalRemove([]string{"a", "b"}); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	recs, err = st.JournalLoad()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty journal, got %d", len(recs))
	}
}

func TestTemplateFor(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	template := newReminder("tmpl", now)
	template.RecurrenceID = "pat-1"
	template.DueDate = "2025-11-03"
	if err := st.UpsertReminder(ctx, template); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	inst := newReminder("inst", now)
	inst.RecurrenceID = "pat-1"
	inst.IsRecurringInstance = true
	inst.OriginalDueDate = "2025-11-10"
	inst.DueDate = "2025-11-10"
	if err := st.UpsertReminder(ctx, inst); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := st.TemplateFor(ctx, "pat-1")
	if err != nil {
		t.Fatalf("TemplateFor failed: %v", err)
	}
	if got.ID != "tmpl" {
		t.Errorf("expected the non-instance row, got %s", got.ID)
	}
}

func TestChangedSinceSubsecondWatermark(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	// Sub-second timestamps whose RFC3339Nano renderings are not
	// lexicographically ordered (".125Z" sorts before ".12Z" as text).
	// The stored form must be fixed-width so the SQL comparison still
	// follows time order.
	watermark := time.Date(2025, 11, 1, 10, 0, 0, 120_000_000, time.UTC)
	updated := time.Date(2025, 11, 1, 10, 0, 0, 125_000_000, time.UTC)

	if err := st.UpsertReminder(ctx, newReminder("a", updated)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	changed, err := st.ChangedSince(ctx, watermark)
	if err != nil {
		t.Fatalf("ChangedSince failed: %v", err)
	}
	if len(changed) != 1 || changed[0].ID != "a" {
		t.Fatalf("expected the strictly-later row, got %v", changed)
	}

	// And the row itself must round-trip to the exact instant.
	got, err := st.GetReminder(ctx, "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Errorf("expected updated_at %v, got %v", updated, got.UpdatedAt)
	}
}

func TestTimestampsSortAsText(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 11, 1, 10, 0, 0, 12_000_000, time.UTC),
		time.Date(2025, 11, 1, 10, 0, 0, 120_000_000, time.UTC),
		time.Date(2025, 11, 1, 10, 0, 0, 125_000_000, time.UTC),
		time.Date(2025, 11, 1, 10, 0, 1, 0, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		a, b := formatTimestamp(times[i-1]), formatTimestamp(times[i])
		if !(a < b) {
			t.Errorf("%q must sort before %q", a, b)
		}
		if len(a) != len(b) {
			t.Errorf("timestamps must be fixed width: %q vs %q", a, b)
		}
	}
}
