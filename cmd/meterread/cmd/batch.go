package cmd

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/config"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <paths...>",
		Short: "Read folders of meter photos in parallel and write a report",
		Long: `Read every meter photo found under the given files and directories on a
pool of workers and write a report with the date taken, service type and
reading of each photo.

Report formats: text, json, csv, yaml, xlsx. Without --output the xlsx
report goes to results/YYYY.MM.DDTHH.MM__images.xlsx.

Examples:
  meterread batch photos/
  meterread batch photos/ --recursive --workers 8 --format json
  meterread batch photos/ --format xlsx --output report.xlsx --stats`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBatchCommand,
	}

	// Output flags
	cmd.Flags().StringP("format", "f", batch.FormatText, "output format: "+strings.Join(batch.Formats, ", "))
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout, xlsx: results directory)")
	cmd.Flags().String("results-dir", "results", "directory for the default xlsx report")
	cmd.Flags().Bool("diagnostics", false, "include every OCR attempt in json and yaml output")
	cmd.Flags().Bool("save-display", false, "save each display crop as <name>_display.jpg")
	cmd.Flags().String("display-dir", "", "directory for saved display crops (default: displays)")

	// Parallel processing flags
	cmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: config, %d CPUs available)", runtime.NumCPU()))
	cmd.Flags().Bool("continue-on-error", true, "keep going when a photo cannot be loaded")

	// File discovery flags
	cmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	cmd.Flags().StringSlice("include", batch.DefaultIncludePatterns, "file patterns to include")
	cmd.Flags().StringSlice("exclude", batch.DefaultExcludePatterns, "file patterns to exclude")

	// Progress and monitoring flags
	cmd.Flags().Bool("progress", false, "show progress")
	cmd.Flags().Bool("quiet", false, "suppress progress output")
	cmd.Flags().Bool("stats", false, "show processing statistics")
	cmd.Flags().Duration("progress-interval", 100*time.Millisecond, "progress update interval")
	return cmd
}

// configToBatchConfig maps configuration to batch.Config with CLI flag
// overrides.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	bc := cfg.ToBatchConfig()

	if cmd.Flags().Changed("format") {
		bc.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("output") {
		bc.OutputFile, _ = cmd.Flags().GetString("output")
	}
	if cmd.Flags().Changed("results-dir") {
		bc.ResultsDir, _ = cmd.Flags().GetString("results-dir")
	}
	if cmd.Flags().Changed("workers") {
		bc.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("continue-on-error") {
		bc.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	if cmd.Flags().Changed("recursive") {
		bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	if cmd.Flags().Changed("include") {
		bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}
	if cmd.Flags().Changed("exclude") {
		bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}
	if cmd.Flags().Changed("progress") {
		bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	}
	if cmd.Flags().Changed("stats") {
		bc.ShowStats, _ = cmd.Flags().GetBool("stats")
	}

	// Progress settings are CLI-only
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	bc.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")
	return bc
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	bc := configToBatchConfig(cfg, cmd)
	if err := bc.Validate(); err != nil {
		return err
	}

	diagnostics := cfg.OCR.Diagnostics
	if cmd.Flags().Changed("diagnostics") {
		diagnostics, _ = cmd.Flags().GetBool("diagnostics")
	}
	reader := buildReader(cfg, readerOptions{
		diagnostics: diagnostics,
		displayDir:  displayDirFor(cmd, cfg),
	})

	result, err := batch.ProcessBatch(cmd.Context(), args, reader, bc, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := result.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.ResultsDir, bc.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if bc.ShowStats {
		result.PrintStats(cmd.ErrOrStderr(), bc.Quiet)
	}
	return nil
}
