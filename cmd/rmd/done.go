package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/store"
	"github.com/remindful/remindful/internal/ui"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	Aliases: []string{"complete"},
	GroupID: "reminders",
	Short:   "Mark a reminder completed",
	Long: `Mark a reminder completed. The id may be abbreviated to any unique
prefix.

Completing one occurrence of a recurring reminder never touches its
siblings; each materialized instance is an independent row.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		rem, err := findReminder(e, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		now := time.Now().UTC()
		rem.Status = model.StatusCompleted
		rem.CompletedAt = &now
		rem.SnoozedUntil = nil
		rem.Touch()

		if err := e.record(ctx, model.ActionUpdate, rem); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Completed: %s\n", ui.RenderPass("✓"), rem.Text)
	},
}

var snoozeCmd = &cobra.Command{
	Use:     "snooze <id> <until>",
	GroupID: "reminders",
	Short:   "Snooze a reminder until a later time",
	Long: `Snooze a reminder. The until argument accepts YYYY-MM-DD or natural
language ("tomorrow", "next monday").

Example usage:
  rmd snooze 4f1c2a3b tomorrow
  rmd snooze 4f1c2a3b 2026-10-01`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		rem, err := findReminder(e, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		date, err := resolveDate(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		until, err := time.Parse(model.DateLayout, date)
		if err != nil {
			fatalf("%v", err)
		}

		rem.Status = model.StatusSnoozed
		rem.SnoozedUntil = &until
		rem.Touch()

		if err := e.record(ctx, model.ActionUpdate, rem); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Snoozed until %s: %s\n", ui.RenderWarn("z"), date, rem.Text)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	GroupID: "reminders",
	Short:   "Delete a reminder",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		rem, err := findReminder(e, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		rem.Touch()
		if err := e.record(ctx, model.ActionDelete, rem); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Deleted: %s\n", rem.Text)
	},
}

// findReminder resolves an id or unique id prefix.
func findReminder(e *env, idOrPrefix string) (*model.Reminder, error) {
	ctx := commandContext()

	rem, err := e.store.GetReminder(ctx, idOrPrefix)
	if err == nil {
		return rem, nil
	}

	all, err := e.store.ListReminders(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}

	var matches []*model.Reminder
	for _, r := range all {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no reminder matches %q", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

func init() {
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(snoozeCmd)
	rootCmd.AddCommand(rmCmd)
}
