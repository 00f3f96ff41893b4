package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/model"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(&Config{
		Port:         0, // ephemeral
		WriteTimeout: time.Second,
		Logger:       log.New(io.Discard, "", 0),
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	// Wait for the server to register the connection.
	deadline := time.After(2 * time.Second)
	for s.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for client registration")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

func TestBroadcastReachesClient(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)

	s.Broadcast(Message{
		Type: MessageTypeQueueDepth,
		Data: json.RawMessage(`{"depth":3}`),
	})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeQueueDepth {
		t.Errorf("message type = %q, want queue_depth", msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast must stamp messages")
	}

	var data QueueDepthData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("data unmarshal failed: %v", err)
	}
	if data.Depth != 3 {
		t.Errorf("depth = %d, want 3", data.Depth)
	}
}

func TestHealthReportsClients(t *testing.T) {
	s := startServer(t)
	dial(t, s)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Status != "ok" || body.Clients != 1 {
		t.Errorf("unexpected health body: %+v", body)
	}
}

func TestClientDisconnectRemoves(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)

	_ = conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.After(2 * time.Second)
	for s.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for client removal")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHandlerStatusMessage(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	h.OnStatus(client.StatusSyncing)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncStatus {
		t.Fatalf("message type = %q, want sync_status", msg.Type)
	}
	var data StatusData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("data unmarshal failed: %v", err)
	}
	if data.Status != "syncing" {
		t.Errorf("status = %q, want syncing", data.Status)
	}
}

func TestHandlerRoundWithConflicts(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	now := time.Now().UTC()
	h.OnRoundComplete(&client.Result{
		Pushed:        2,
		AppliedRemote: 2,
		AppliedLocal:  1,
		Conflicts: []client.Conflict{
			{ID: "a", LocalUpdatedAt: now, RemoteUpdatedAt: now.Add(time.Minute),
				Resolution: client.ResolutionRemoteWins},
		},
		Duration: 120 * time.Millisecond,
	})

	round := readMessage(t, conn)
	if round.Type != MessageTypeRoundComplete {
		t.Fatalf("first message type = %q, want round_complete", round.Type)
	}
	var data RoundData
	if err := json.Unmarshal(round.Data, &data); err != nil {
		t.Fatalf("data unmarshal failed: %v", err)
	}
	if data.Pushed != 2 || data.Conflicts != 1 {
		t.Errorf("unexpected round data: %+v", data)
	}

	conflict := readMessage(t, conn)
	if conflict.Type != MessageTypeConflict {
		t.Errorf("second message type = %q, want conflict", conflict.Type)
	}
}

func TestHandlerReminderUpdate(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	h := NewHandler(s, log.New(io.Discard, "", 0))

	rem := &model.Reminder{ID: "a", Text: "water the plants", Status: model.StatusPending}
	h.OnReminderChanged(model.ActionUpdate, rem)

	msg := readMessage(t, conn)
	var data ReminderUpdateData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("data unmarshal failed: %v", err)
	}
	if data.ID != "a" || data.Text != "water the plants" || data.Action != model.ActionUpdate {
		t.Errorf("unexpected update data: %+v", data)
	}

	// Deletes carry no content.
	h.OnReminderChanged(model.ActionDelete, rem)
	msg = readMessage(t, conn)
	data = ReminderUpdateData{}
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("data unmarshal failed: %v", err)
	}
	if data.Text != "" {
		t.Error("delete message must not carry text")
	}
}
