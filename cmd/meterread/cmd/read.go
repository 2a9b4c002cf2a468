package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <images...>",
		Short: "Read the meter value from photos",
		Long: `Run the full reading flow on one or more photos: classify the service type,
locate the display and extract the reading.

Supported formats: JPEG, PNG, BMP

Examples:
  meterread read IMG_0001.jpg
  meterread read *.jpg --format json --diagnostics
  meterread read IMG_0001.jpg --save-display --display-dir crops`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRead,
	}
	cmd.Flags().StringP("format", "f", batch.FormatText, "output format: "+strings.Join(batch.Formats, ", "))
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().Bool("diagnostics", false, "include every OCR attempt in json and yaml output")
	cmd.Flags().Bool("save-display", false, "save each display crop as <name>_display.jpg")
	cmd.Flags().String("display-dir", "", "directory for saved display crops (default: displays)")
	return cmd
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	format := cfg.Output.Format
	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}
	if !slices.Contains(batch.Formats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(batch.Formats, ", "))
	}
	outputFile := cfg.Output.File
	if cmd.Flags().Changed("output") {
		outputFile, _ = cmd.Flags().GetString("output")
	}
	diagnostics := cfg.OCR.Diagnostics
	if cmd.Flags().Changed("diagnostics") {
		diagnostics, _ = cmd.Flags().GetBool("diagnostics")
	}

	reader := buildReader(cfg, readerOptions{
		diagnostics: diagnostics,
		displayDir:  displayDirFor(cmd, cfg),
	})

	failures := &loadFailures{}
	start := time.Now()
	readings, err := reader.ReadFiles(cmd.Context(), args, meter.ParallelConfig{
		MaxWorkers:       cfg.Batch.Workers,
		ContinueOnError:  true,
		ProgressCallback: failures,
	})
	if err != nil {
		return err
	}

	result := &batch.Result{
		Readings:    readings,
		Rows:        make([]batch.Row, len(args)),
		ImagePaths:  args,
		Duration:    time.Since(start),
		WorkerCount: cfg.Batch.Workers,
	}
	for i, path := range args {
		takenAt, ok := batch.TakenAt(path)
		if !ok {
			takenAt = batch.NoEXIF
		}
		result.Rows[i] = batch.NewRow(path, takenAt, readings[i])
	}

	if err := result.SaveResults(cmd.OutOrStdout(), format, outputFile, cfg.Batch.ResultsDir, false); err != nil {
		return err
	}
	if failures.count > 0 {
		return fmt.Errorf("%d of %d file(s) could not be read", failures.count, len(args))
	}
	return nil
}

// loadFailures counts the files ReadFiles could not load.
type loadFailures struct {
	meter.NoOpProgressCallback
	count int
}

func (f *loadFailures) OnError(int, error) { f.count++ }
