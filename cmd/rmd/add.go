package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/model"
	"github.com/remindful/remindful/internal/ui"
)

var addFlags struct {
	due          string
	dueTime      string
	timeRequired bool
	priority     string
	category     string
	locationName string
	locationAddr string
	lat          float64
	lng          float64
	radius       int

	every      string
	interval   int
	days       string
	dayOfMonth int
	month      int
	until      string
	count      int

	interactive bool
}

var addCmd = &cobra.Command{
	Use:     "add [text]",
	GroupID: "reminders",
	Short:   "Add a reminder",
	Long: `Add a reminder. The due date accepts YYYY-MM-DD or natural language
("tomorrow", "next friday", "in 3 days").

Recurring reminders take --every plus optional shape flags. The first
occurrence is the reminder itself; future occurrences inside the
90-day horizon are materialized immediately and extended as time
passes.

Example usage:
  rmd add "Water the plants" --due tomorrow
  rmd add "Standup" --every weekly --days 0,2,4 --time 09:30:00
  rmd add "Pay rent" --every monthly --day-of-month 31
  rmd add "Renew passport" --due 2027-03-01 --priority important
  rmd add --interactive`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		text := ""
		if len(args) > 0 {
			text = args[0]
		}

		if addFlags.interactive {
			if err := runAddForm(&text); err != nil {
				fatalf("%v", err)
			}
		}
		if text == "" {
			fatalf("reminder text is required (or use --interactive)")
		}

		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		dueDate, err := resolveDate(addFlags.due)
		if err != nil {
			fatalf("%v", err)
		}

		rem := &model.Reminder{
			ID:              uuid.NewString(),
			Text:            text,
			DueDate:         dueDate,
			DueTime:         addFlags.dueTime,
			TimeRequired:    addFlags.timeRequired,
			LocationName:    addFlags.locationName,
			LocationAddress: addFlags.locationAddr,
			LocationRadius:  addFlags.radius,
			Priority:        addFlags.priority,
			Category:        addFlags.category,
			Source:          model.SourceManual,
		}
		if cmd.Flags().Changed("lat") {
			lat := addFlags.lat
			rem.LocationLat = &lat
		}
		if cmd.Flags().Changed("lng") {
			lng := addFlags.lng
			rem.LocationLng = &lng
		}
		rem.SetDefaults()

		var pattern *model.RecurrencePattern
		if addFlags.every != "" {
			pattern = &model.RecurrencePattern{
				ID:          uuid.NewString(),
				Frequency:   addFlags.every,
				Interval:    addFlags.interval,
				DaysOfWeek:  addFlags.days,
				DayOfMonth:  addFlags.dayOfMonth,
				MonthOfYear: addFlags.month,
				EndDate:     addFlags.until,
				EndCount:    addFlags.count,
				CreatedAt:   time.Now().UTC(),
			}
			rem.RecurrenceID = pattern.ID
			if rem.DueDate == "" {
				rem.DueDate = time.Now().UTC().Format(model.DateLayout)
			}
		}

		if err := rem.Validate(); err != nil {
			fatalf("%v", err)
		}
		if pattern != nil {
			if err := e.store.CreatePattern(ctx, pattern); err != nil {
				fatalf("%v", err)
			}
		}
		if err := e.record(ctx, model.ActionCreate, rem); err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Added %s: %s\n", ui.RenderPass("✓"), shortID(rem.ID), rem.Text)
		if rem.DueDate != "" {
			fmt.Printf("   Due: %s\n", rem.DueDate)
		}

		if pattern != nil {
			created, err := e.materializer(nil).Materialize(ctx, rem, pattern, time.Now())
			if err != nil {
				fatalf("failed to materialize occurrences: %v", err)
			}
			fmt.Printf("   Repeats %s; %d upcoming occurrence(s) scheduled\n",
				pattern.Frequency, len(created))
		}
	},
}

// resolveDate turns flag input into a YYYY-MM-DD date. Exact dates pass
// through; anything else goes to the natural language parser.
func resolveDate(input string) (string, error) {
	if input == "" {
		return "", nil
	}
	if _, err := time.Parse(model.DateLayout, input); err == nil {
		return input, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(input, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if result == nil {
		return "", fmt.Errorf("could not understand date %q", input)
	}
	return result.Time.Format(model.DateLayout), nil
}

// runAddForm collects missing fields interactively.
func runAddForm(text *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("What do you want to be reminded about?").
				Value(text).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("text is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("When is it due? (optional)").
				Description("YYYY-MM-DD or natural language").
				Value(&addFlags.due),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("Chill", model.PriorityChill),
					huh.NewOption("Important", model.PriorityImportant),
					huh.NewOption("Urgent", model.PriorityUrgent),
					huh.NewOption("Waiting", model.PriorityWaiting),
					huh.NewOption("Someday", model.PrioritySomeday),
				).
				Value(&addFlags.priority),
			huh.NewInput().
				Title("Category (optional)").
				Value(&addFlags.category),
		),
	)
	return form.Run()
}

func init() {
	addCmd.Flags().StringVar(&addFlags.due, "due", "", "Due date (YYYY-MM-DD or natural language)")
	addCmd.Flags().StringVar(&addFlags.dueTime, "time", "", "Due time (HH:MM:SS)")
	addCmd.Flags().BoolVar(&addFlags.timeRequired, "time-required", false, "Treat the due time as a hard deadline")
	addCmd.Flags().StringVarP(&addFlags.priority, "priority", "p", model.PriorityChill, "Priority (someday|chill|important|urgent|waiting)")
	addCmd.Flags().StringVarP(&addFlags.category, "category", "c", "", "Category label")
	addCmd.Flags().StringVar(&addFlags.locationName, "location-name", "", "Location name")
	addCmd.Flags().StringVar(&addFlags.locationAddr, "location-address", "", "Location address")
	addCmd.Flags().Float64Var(&addFlags.lat, "lat", 0, "Location latitude")
	addCmd.Flags().Float64Var(&addFlags.lng, "lng", 0, "Location longitude")
	addCmd.Flags().IntVar(&addFlags.radius, "radius", 0, "Location radius in meters")

	addCmd.Flags().StringVar(&addFlags.every, "every", "", "Repeat frequency (daily|weekly|monthly|yearly)")
	addCmd.Flags().IntVar(&addFlags.interval, "interval", 1, "Repeat every N periods")
	addCmd.Flags().StringVar(&addFlags.days, "days", "", "Weekly: days of week, 0=Mon..6=Sun (e.g. 0,2,4)")
	addCmd.Flags().IntVar(&addFlags.dayOfMonth, "day-of-month", 0, "Monthly: day of month (1-31, clamps in short months)")
	addCmd.Flags().IntVar(&addFlags.month, "month-of-year", 0, "Yearly: month (1-12)")
	addCmd.Flags().StringVar(&addFlags.until, "until", "", "Stop repeating after this date (YYYY-MM-DD, inclusive)")
	addCmd.Flags().IntVar(&addFlags.count, "count", 0, "Stop after N occurrences")

	addCmd.Flags().BoolVarP(&addFlags.interactive, "interactive", "i", false, "Fill in fields interactively")

	rootCmd.AddCommand(addCmd)
}
