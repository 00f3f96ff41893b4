package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/remindful/remindful/internal/model"
)

// IngestFile reads one dropped reminder JSON file, stores it, queues a
// create change, and removes the file. Used by external capture tools
// (voice transcribers, mail filters) that cannot speak the API:
// anything they write into the inbox becomes a reminder on the next
// debounce tick.
func (d *Daemon) IngestFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read inbox file: %w", err)
	}

	var rem model.Reminder
	if err := json.Unmarshal(data, &rem); err != nil {
		return fmt.Errorf("failed to decode inbox file: %w", err)
	}

	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.Source == "" {
		rem.Source = model.SourceAPI
	}
	rem.SetDefaults()
	if err := rem.Validate(); err != nil {
		return fmt.Errorf("inbox file is not a valid reminder: %w", err)
	}

	if err := d.store.UpsertReminder(ctx, &rem); err != nil {
		return fmt.Errorf("failed to store inbox reminder: %w", err)
	}

	if d.queue != nil {
		rec, err := model.NewChange(model.ActionCreate, &rem)
		if err != nil {
			return err
		}
		if err := d.queue.Enqueue(rec); err != nil {
			return fmt.Errorf("failed to queue inbox change: %w", err)
		}
	}

	if err := os.Remove(path); err != nil {
		d.config.Logger.Printf("Warning: failed to remove ingested file %s: %v", path, err)
	}

	d.config.Logger.Printf("Ingested reminder %s from inbox: %s", rem.ID, rem.Text)
	return nil
}
