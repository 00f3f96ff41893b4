// Package export moves reminder data across device and backup
// boundaries: JSONL for streaming archives, YAML for human-editable
// snapshots. Imports merge by last-write-wins so replaying an old
// archive never clobbers newer local edits.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/store"
)

// Line kinds in a JSONL archive.
const (
	KindReminder = "reminder"
	KindPattern  = "pattern"
)

// Line is one record of a JSONL archive. Exactly one of Reminder or
// Pattern is set, selected by Kind.
type Line struct {
	Kind     string                   `json:"kind"`
	Reminder *model.Reminder          `json:"reminder,omitempty"`
	Pattern  *model.RecurrencePattern `json:"pattern,omitempty"`
}

// Archive is the YAML snapshot format.
type Archive struct {
	ExportedAt time.Time                  `yaml:"exported_at" json:"exported_at"`
	Reminders  []*model.Reminder          `yaml:"reminders" json:"reminders"`
	Patterns   []*model.RecurrencePattern `yaml:"patterns,omitempty" json:"patterns,omitempty"`
}

// Options configures an import.
type Options struct {
	// DryRun previews without writing.
	DryRun bool
}

// Result contains statistics about an export or import.
type Result struct {
	Reminders int
	Patterns  int
	Skipped   int
	Errors    []string
}

// Store is the slice of the persistence layer export needs.
// *store.Store satisfies it.
type Store interface {
	ListReminders(ctx context.Context, filter store.ListFilter) ([]*model.Reminder, error)
	ListPatterns(ctx context.Context) ([]*model.RecurrencePattern, error)
	GetReminder(ctx context.Context, id string) (*model.Reminder, error)
	UpsertReminder(ctx context.Context, r *model.Reminder) error
	GetPattern(ctx context.Context, id string) (*model.RecurrencePattern, error)
	CreatePattern(ctx context.Context, p *model.RecurrencePattern) error
}

// snapshot loads the full dataset for export.
func snapshot(ctx context.Context, st Store) (*Archive, error) {
	reminders, err := st.ListReminders(ctx, store.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load reminders: %w", err)
	}
	patterns, err := st.ListPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	return &Archive{
		ExportedAt: time.Now().UTC(),
		Reminders:  reminders,
		Patterns:   patterns,
	}, nil
}

// ToJSONL writes the full dataset to w, one tagged record per line.
// Patterns come first so an import can link instances as it goes.
func ToJSONL(ctx context.Context, st Store, w io.Writer) (*Result, error) {
	arch, err := snapshot(ctx, st)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(w)
	result := &Result{}

	for _, p := range arch.Patterns {
		if err := enc.Encode(Line{Kind: KindPattern, Pattern: p}); err != nil {
			return nil, fmt.Errorf("failed to encode pattern %s: %w", p.ID, err)
		}
		result.Patterns++
	}
	for _, r := range arch.Reminders {
		if err := enc.Encode(Line{Kind: KindReminder, Reminder: r}); err != nil {
			return nil, fmt.Errorf("failed to encode reminder %s: %w", r.ID, err)
		}
		result.Reminders++
	}
	return result, nil
}

// ToJSONLFile writes a JSONL archive atomically via a temp file.
func ToJSONLFile(ctx context.Context, st Store, path string) (*Result, error) {
	return writeAtomic(path, func(w io.Writer) (*Result, error) {
		return ToJSONL(ctx, st, w)
	})
}

// FromJSONL reads a JSONL archive and merges it into the store.
//
// Reminders merge by last-write-wins: a record is skipped when the
// store already holds a strictly newer copy of the same id. Patterns
// are immutable, so an existing id is always skipped.
func FromJSONL(ctx context.Context, st Store, r io.Reader, opts Options) (*Result, error) {
	result := &Result{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}

		switch line.Kind {
		case KindPattern:
			if line.Pattern == nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("line %d: pattern record has no pattern", lineNum))
				continue
			}
			if err := importPattern(ctx, st, line.Pattern, opts, result); err != nil {
				return nil, err
			}

		case KindReminder:
			if line.Reminder == nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("line %d: reminder record has no reminder", lineNum))
				continue
			}
			if err := importReminder(ctx, st, line.Reminder, opts, result); err != nil {
				return nil, err
			}

		default:
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: unknown kind %q", lineNum, line.Kind))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	return result, nil
}

// FromJSONLFile reads a JSONL archive from disk.
func FromJSONLFile(ctx context.Context, st Store, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()
	return FromJSONL(ctx, st, f, opts)
}

// ToYAML writes the full dataset as one YAML document.
func ToYAML(ctx context.Context, st Store, w io.Writer) (*Result, error) {
	arch, err := snapshot(ctx, st)
	if err != nil {
		return nil, err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(arch); err != nil {
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return &Result{
		Reminders: len(arch.Reminders),
		Patterns:  len(arch.Patterns),
	}, nil
}

// ToYAMLFile writes a YAML snapshot atomically via a temp file.
func ToYAMLFile(ctx context.Context, st Store, path string) (*Result, error) {
	return writeAtomic(path, func(w io.Writer) (*Result, error) {
		return ToYAML(ctx, st, w)
	})
}

// FromYAML reads a YAML snapshot and merges it with the same semantics
// as FromJSONL.
func FromYAML(ctx context.Context, st Store, r io.Reader, opts Options) (*Result, error) {
	var arch Archive
	if err := yaml.NewDecoder(r).Decode(&arch); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}

	result := &Result{}
	for _, p := range arch.Patterns {
		if err := importPattern(ctx, st, p, opts, result); err != nil {
			return nil, err
		}
	}
	for _, rem := range arch.Reminders {
		if err := importReminder(ctx, st, rem, opts, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FromYAMLFile reads a YAML snapshot from disk.
func FromYAMLFile(ctx context.Context, st Store, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()
	return FromYAML(ctx, st, f, opts)
}

func importReminder(ctx context.Context, st Store, rem *model.Reminder, opts Options, result *Result) error {
	rem.SetDefaults()
	if err := rem.Validate(); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("invalid reminder %s: %v", rem.ID, err))
		return nil
	}

	existing, err := st.GetReminder(ctx, rem.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check reminder %s: %w", rem.ID, err)
	}
	if existing != nil && existing.UpdatedAt.After(rem.UpdatedAt) {
		result.Skipped++
		return nil
	}

	if !opts.DryRun {
		if err := st.UpsertReminder(ctx, rem); err != nil {
			return fmt.Errorf("failed to import reminder %s: %w", rem.ID, err)
		}
	}
	result.Reminders++
	return nil
}

func importPattern(ctx context.Context, st Store, p *model.RecurrencePattern, opts Options, result *Result) error {
	if err := p.Validate(); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("invalid pattern %s: %v", p.ID, err))
		return nil
	}

	if _, err := st.GetPattern(ctx, p.ID); err == nil {
		result.Skipped++
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check pattern %s: %w", p.ID, err)
	}

	if !opts.DryRun {
		if err := st.CreatePattern(ctx, p); err != nil {
			return fmt.Errorf("failed to import pattern %s: %w", p.ID, err)
		}
	}
	result.Patterns++
	return nil
}

// writeAtomic writes through a temp file and renames into place, so a
// crash mid-export never leaves a truncated archive.
func writeAtomic(path string, write func(io.Writer) (*Result, error)) (*Result, error) {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := write(f)
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}
