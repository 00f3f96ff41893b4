package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/store"
	"github.com/remindful/remindful/internal/ui"
)

var listFlags struct {
	status   string
	category string
	priority string
	all      bool
	limit    int
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "reminders",
	Short:   "List reminders",
	Long: `List reminders, pending ones by default.

Example usage:
  rmd list                       # Pending reminders
  rmd list --all                 # Everything, including completed
  rmd list --priority urgent
  rmd list --category errands --status snoozed`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		filter := store.ListFilter{
			Status:   listFlags.status,
			Category: listFlags.category,
			Priority: listFlags.priority,
			Limit:    listFlags.limit,
		}
		if !listFlags.all && filter.Status == "" {
			filter.Status = model.StatusPending
		}
		if listFlags.all {
			filter.Status = ""
		}

		reminders, err := e.store.ListReminders(ctx, filter)
		if err != nil {
			fatalf("%v", err)
		}

		if len(reminders) == 0 {
			fmt.Println("No reminders found.")
			return
		}

		for _, rem := range reminders {
			printReminder(rem)
		}
		fmt.Printf("\n%d reminder(s)\n", len(reminders))
	},
}

func printReminder(rem *model.Reminder) {
	marker := " "
	switch rem.Status {
	case model.StatusCompleted:
		marker = ui.RenderPass("✓")
	case model.StatusSnoozed:
		marker = ui.RenderWarn("z")
	}

	due := ""
	if rem.DueDate != "" {
		due = rem.DueDate
		if rem.DueTime != "" {
			due += " " + rem.DueTime
		}
	}

	line := fmt.Sprintf("%s %s  %-10s", marker, ui.RenderDim(shortID(rem.ID)), ui.RenderPriority(rem.Priority))
	if due != "" {
		line += fmt.Sprintf("  %s", due)
	}
	line += "  " + rem.Text
	if rem.IsRecurringInstance {
		line += " " + ui.RenderDim("(recurring)")
	}
	if rem.Category != "" {
		line += " " + ui.RenderDim("#"+rem.Category)
	}
	fmt.Println(line)
}

func init() {
	listCmd.Flags().StringVarP(&listFlags.status, "status", "s", "", "Filter by status (pending|completed|snoozed)")
	listCmd.Flags().StringVarP(&listFlags.category, "category", "c", "", "Filter by category")
	listCmd.Flags().StringVarP(&listFlags.priority, "priority", "p", "", "Filter by priority")
	listCmd.Flags().BoolVarP(&listFlags.all, "all", "a", false, "Include completed and snoozed reminders")
	listCmd.Flags().IntVarP(&listFlags.limit, "limit", "n", 0, "Limit the number of results")

	rootCmd.AddCommand(listCmd)
}
