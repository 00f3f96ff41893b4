package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/queue"
	"github.com/remindful/remindful/internal/store"
)

func testServer(t *testing.T, token string) (*Server, *store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	srv := New(st, &Config{Token: token})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, st, ts
}

func postSync(t *testing.T, url, token string, req *client.Request) (*client.Response, int) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, url+"/api/sync", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request build failed: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, httpResp.StatusCode
	}
	var resp client.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return &resp, httpResp.StatusCode
}

func serverChange(t *testing.T, action string, rem *model.Reminder) *model.ChangeRecord {
	t.Helper()
	rec, err := model.NewChange(action, rem)
	if err != nil {
		t.Fatalf("failed to build change: %v", err)
	}
	return rec
}

func serverReminder(id string, updatedAt time.Time) *model.Reminder {
	return &model.Reminder{
		ID:        id,
		Text:      "reminder " + id,
		Priority:  model.PriorityChill,
		Status:    model.StatusPending,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
}

func TestSyncAppliesIncomingChanges(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)

	rem := serverReminder("a", now)
	resp, status := postSync(t, ts.URL, "", &client.Request{
		ClientID: "dev-1",
		Changes:  []*model.ChangeRecord{serverChange(t, model.ActionCreate, rem)},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	if resp.AppliedCount != 1 {
		t.Errorf("expected applied_count 1, got %d", resp.AppliedCount)
	}
	if len(resp.Conflicts) != 0 {
		t.Errorf("expected no conflicts, got %v", resp.Conflicts)
	}
	// The caller's own applied changes are not echoed back.
	if len(resp.ServerChanges) != 0 {
		t.Errorf("expected no server changes, got %v", resp.ServerChanges)
	}
	if resp.SyncTimestamp.IsZero() {
		t.Error("expected a sync timestamp")
	}

	got, err := st.GetReminder(context.Background(), "a")
	if err != nil {
		t.Fatalf("change not applied: %v", err)
	}
	if got.Text != rem.Text {
		t.Errorf("unexpected stored text %q", got.Text)
	}
}

func TestSyncDeleteChange(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	existing := serverReminder("a", now.Add(-time.Hour))
	if err := st.UpsertReminder(ctx, existing); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	tomb := serverReminder("a", now)
	resp, _ := postSync(t, ts.URL, "", &client.Request{
		ClientID: "dev-1",
		Changes:  []*model.ChangeRecord{serverChange(t, model.ActionDelete, tomb)},
	})

	if resp.AppliedCount != 1 {
		t.Errorf("expected applied_count 1, got %d", resp.AppliedCount)
	}
	if _, err := st.GetReminder(ctx, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected row deleted, got %v", err)
	}
}

func TestSyncServerCopyWins(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	newer := serverReminder("a", now)
	newer.Text = "server version"
	if err := st.UpsertReminder(ctx, newer); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	stale := serverReminder("a", now.Add(-time.Hour))
	stale.Text = "stale client version"
	lastSync := now.Add(-2 * time.Hour)
	resp, _ := postSync(t, ts.URL, "", &client.Request{
		ClientID: "dev-1",
		LastSync: &lastSync,
		Changes:  []*model.ChangeRecord{serverChange(t, model.ActionUpdate, stale)},
	})

	if resp.AppliedCount != 0 {
		t.Errorf("stale change must not apply, applied_count=%d", resp.AppliedCount)
	}
	if len(resp.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(resp.Conflicts))
	}
	c := resp.Conflicts[0]
	if c.Resolution != client.ResolutionRemoteWins {
		t.Errorf("expected remote_wins, got %q", c.Resolution)
	}
	if c.ID != "a" {
		t.Errorf("conflict id %q", c.ID)
	}

	// The authoritative copy flows back so the client converges.
	found := false
	for _, rem := range resp.ServerChanges {
		if rem.ID == "a" && rem.Text == "server version" {
			found = true
		}
	}
	if !found {
		t.Error("expected the winning server copy in server_changes")
	}

	got, _ := st.GetReminder(ctx, "a")
	if got.Text != "server version" {
		t.Errorf("server row must be untouched, got %q", got.Text)
	}
}

func TestSyncClientCopyWins(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	older := serverReminder("a", now.Add(-time.Hour))
	older.Text = "old server version"
	if err := st.UpsertReminder(ctx, older); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	newer := serverReminder("a", now)
	newer.Text = "newer client version"
	lastSync := now.Add(-2 * time.Hour)
	resp, _ := postSync(t, ts.URL, "", &client.Request{
		ClientID: "dev-1",
		LastSync: &lastSync,
		Changes:  []*model.ChangeRecord{serverChange(t, model.ActionUpdate, newer)},
	})

	if resp.AppliedCount != 1 {
		t.Errorf("newer change must apply, applied_count=%d", resp.AppliedCount)
	}
	if len(resp.Conflicts) != 1 || resp.Conflicts[0].Resolution != client.ResolutionLocalWins {
		t.Errorf("expected reported local_wins conflict, got %v", resp.Conflicts)
	}

	got, _ := st.GetReminder(ctx, "a")
	if got.Text != "newer client version" {
		t.Errorf("expected client version stored, got %q", got.Text)
	}
}

func TestSyncReturnsChangesSinceWatermark(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	before := serverReminder("old", now.Add(-2*time.Hour))
	after := serverReminder("new", now)
	for _, rem := range []*model.Reminder{before, after} {
		if err := st.UpsertReminder(ctx, rem); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	lastSync := now.Add(-time.Hour)
	resp, _ := postSync(t, ts.URL, "", &client.Request{
		ClientID: "dev-1",
		LastSync: &lastSync,
	})

	if len(resp.ServerChanges) != 1 || resp.ServerChanges[0].ID != "new" {
		t.Errorf("expected only rows after the watermark, got %v", resp.ServerChanges)
	}
}

func TestSyncFirstRoundReturnsEverything(t *testing.T) {
	_, st, ts := testServer(t, "")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := st.UpsertReminder(ctx, serverReminder(id, now)); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	resp, _ := postSync(t, ts.URL, "", &client.Request{ClientID: "dev-1"})
	if len(resp.ServerChanges) != 2 {
		t.Errorf("expected full dataset on first round, got %d", len(resp.ServerChanges))
	}
}

func TestSyncRequiresClientID(t *testing.T) {
	_, _, ts := testServer(t, "")
	_, status := postSync(t, ts.URL, "", &client.Request{})
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}

func TestSyncRejectsBadToken(t *testing.T) {
	_, _, ts := testServer(t, "secret")

	_, status := postSync(t, ts.URL, "", &client.Request{ClientID: "dev-1"})
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", status)
	}

	_, status = postSync(t, ts.URL, "wrong", &client.Request{ClientID: "dev-1"})
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", status)
	}

	resp, status := postSync(t, ts.URL, "secret", &client.Request{ClientID: "dev-1"})
	if status != http.StatusOK || resp == nil {
		t.Errorf("expected 200 with correct token, got %d", status)
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	_, _, ts := testServer(t, "secret")

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

// End-to-end: a real sync client against a real server, covering the
// full round trip including conflict convergence.
func TestClientServerRound(t *testing.T) {
	_, st, ts := testServer(t, "secret")
	now := time.Now().UTC().Truncate(time.Second)
	ctx := context.Background()

	// Server holds a newer copy of "a"; the client queues a stale edit
	// plus a brand-new "b".
	serverCopy := serverReminder("a", now)
	serverCopy.Text = "server wins"
	if err := st.UpsertReminder(ctx, serverCopy); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	clientStore, err := store.Open(filepath.Join(t.TempDir(), "client.db"))
	if err != nil {
		t.Fatalf("failed to open client store: %v", err)
	}
	defer clientStore.Close()
	if err := clientStore.InitSchema(); err != nil {
		t.Fatalf("failed to init client schema: %v", err)
	}
	if _, err := clientStore.LoadSyncState(ctx); err != nil {
		t.Fatalf("failed to init client sync state: %v", err)
	}

	staleA := serverReminder("a", now.Add(-time.Hour))
	staleA.Text = "stale local edit"
	freshB := serverReminder("b", now)

	q := queue.New(0, nil, discardLogger())
	for _, rem := range []*model.Reminder{staleA, freshB} {
		if err := clientStore.UpsertReminder(ctx, rem); err != nil {
			t.Fatalf("seed client store failed: %v", err)
		}
		if err := q.Enqueue(serverChange(t, model.ActionUpdate, rem)); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	transport := client.NewHTTPTransport(ts.URL, "secret", 0)
	c := client.New(client.Config{ClientID: "dev-1", MaxAttempts: 1, Logger: discardLogger()},
		q, clientStore, transport, time.Time{})

	result, err := c.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if result.Pushed != 2 {
		t.Errorf("expected 2 pushed, got %d", result.Pushed)
	}
	if result.AppliedRemote != 1 {
		t.Errorf("expected 1 accepted (b), got %d", result.AppliedRemote)
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Resolution != client.ResolutionRemoteWins {
		t.Errorf("expected remote_wins conflict for a, got %v", result.Conflicts)
	}

	// Both stores converge on the server's copy of "a".
	localA, err := clientStore.GetReminder(ctx, "a")
	if err != nil {
		t.Fatalf("client copy of a missing: %v", err)
	}
	if localA.Text != "server wins" {
		t.Errorf("client must hold the remote payload, got %q", localA.Text)
	}
	remoteB, err := st.GetReminder(ctx, "b")
	if err != nil {
		t.Fatalf("server copy of b missing: %v", err)
	}
	if remoteB.Text != "reminder b" {
		t.Errorf("server must hold the pushed payload, got %q", remoteB.Text)
	}
	if q.Len() != 0 {
		t.Errorf("queue must be acknowledged after the round, %d left", q.Len())
	}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
