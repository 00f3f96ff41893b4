package dashboard

import (
	"encoding/json"
	"log"
	"time"

	"github.com/remindful/remindful/internal/client"
	"github.com/remindful/remindful/internal/model"
)

// StatusData carries one sync state machine transition.
type StatusData struct {
	Status string `json:"status"`
}

// RoundData summarizes a completed reconciliation round.
type RoundData struct {
	Pushed        int    `json:"pushed"`
	AppliedRemote int    `json:"applied_remote"`
	AppliedLocal  int    `json:"applied_local"`
	Conflicts     int    `json:"conflicts"`
	Duration      string `json:"duration"`
}

// QueueDepthData carries the pending change count.
type QueueDepthData struct {
	Depth int `json:"depth"`
}

// ReminderUpdateData carries a local reminder mutation.
type ReminderUpdateData struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
}

// Handler formats sync events as dashboard messages. Its methods plug
// directly into client.Config.OnStatus and the daemon's round hooks.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnStatus broadcasts a sync state machine transition.
func (h *Handler) OnStatus(status client.Status) {
	h.send(MessageTypeSyncStatus, StatusData{Status: string(status)})
}

// OnRoundComplete broadcasts a round summary plus each conflict it
// resolved.
func (h *Handler) OnRoundComplete(result *client.Result) {
	h.send(MessageTypeRoundComplete, RoundData{
		Pushed:        result.Pushed,
		AppliedRemote: result.AppliedRemote,
		AppliedLocal:  result.AppliedLocal,
		Conflicts:     len(result.Conflicts),
		Duration:      result.Duration.String(),
	})
	for _, c := range result.Conflicts {
		h.send(MessageTypeConflict, c)
	}
}

// OnQueueDepth broadcasts the pending change count.
func (h *Handler) OnQueueDepth(depth int) {
	h.send(MessageTypeQueueDepth, QueueDepthData{Depth: depth})
}

// OnReminderChanged broadcasts a local create, update, or delete.
func (h *Handler) OnReminderChanged(action string, rem *model.Reminder) {
	data := ReminderUpdateData{ID: rem.ID, Action: action}
	if action != model.ActionDelete {
		data.Text = rem.Text
		data.Status = rem.Status
	}
	h.send(MessageTypeReminderUpdate, data)
}

func (h *Handler) send(typ MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s message: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
	})
}
