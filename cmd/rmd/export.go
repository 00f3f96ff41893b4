package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/remindful/remindful/internal/export"
	"github.com/remindful/remindful/internal/ui"
)

var exportFlags struct {
	format string
}

var importFlags struct {
	format string
	dryRun bool
}

var exportCmd = &cobra.Command{
	Use:     "export <path>",
	GroupID: "advanced",
	Short:   "Export reminders and patterns to a file",
	Long: `Export the full dataset to a JSONL or YAML archive. The format is
inferred from the file extension unless --format is given.

Example usage:
  rmd export backup.jsonl
  rmd export snapshot.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		path := args[0]
		format := resolveFormat(exportFlags.format, path)

		var result *export.Result
		switch format {
		case "jsonl":
			result, err = export.ToJSONLFile(ctx, e.store, path)
		case "yaml":
			result, err = export.ToYAMLFile(ctx, e.store, path)
		default:
			fatalf("unknown format %q (want jsonl or yaml)", format)
		}
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Exported %d reminder(s), %d pattern(s) to %s\n",
			ui.RenderPass("✓"), result.Reminders, result.Patterns, path)
	},
}

var importCmd = &cobra.Command{
	Use:     "import <path>",
	GroupID: "advanced",
	Short:   "Import reminders and patterns from a file",
	Long: `Import a JSONL or YAML archive. Reminders merge last-write-wins:
records older than the local copy are skipped, so replaying a stale
backup never clobbers newer edits. Existing patterns are left alone.

Example usage:
  rmd import backup.jsonl
  rmd import snapshot.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()
		e, err := openEnv(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		path := args[0]
		format := resolveFormat(importFlags.format, path)
		opts := export.Options{DryRun: importFlags.dryRun}

		var result *export.Result
		switch format {
		case "jsonl":
			result, err = export.FromJSONLFile(ctx, e.store, path, opts)
		case "yaml":
			result, err = export.FromYAMLFile(ctx, e.store, path, opts)
		default:
			fatalf("unknown format %q (want jsonl or yaml)", format)
		}
		if err != nil {
			fatalf("%v", err)
		}

		verb := "Imported"
		if opts.DryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d reminder(s), %d pattern(s); skipped %d\n",
			ui.RenderPass("✓"), verb, result.Reminders, result.Patterns, result.Skipped)
		for _, msg := range result.Errors {
			fmt.Printf("   %s %s\n", ui.RenderWarn("⚠"), msg)
		}
	},
}

func resolveFormat(flag, path string) string {
	if flag != "" {
		return flag
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "jsonl"
	}
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.format, "format", "f", "", "Archive format (jsonl|yaml)")
	importCmd.Flags().StringVarP(&importFlags.format, "format", "f", "", "Archive format (jsonl|yaml)")
	importCmd.Flags().BoolVar(&importFlags.dryRun, "dry-run", false, "Preview without writing")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
