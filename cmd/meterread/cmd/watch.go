package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dirs...>",
		Short: "Read meter photos as they appear in directories",
		Long: `Watch one or more directories and read every new meter photo once it has
stopped changing. Each reading is printed as one JSON line.

Examples:
  meterread watch inbox/
  meterread watch inbox/ --recursive --debounce 2s`,
		Args: cobra.MinimumNArgs(1),
		RunE: runWatch,
	}
	cmd.Flags().BoolP("recursive", "r", false, "also watch subdirectories")
	cmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before a file is read")
	cmd.Flags().StringSlice("include", batch.DefaultIncludePatterns, "file patterns to include")
	cmd.Flags().StringSlice("exclude", batch.DefaultExcludePatterns, "file patterns to exclude")
	cmd.Flags().Bool("save-display", false, "save each display crop as <name>_display.jpg")
	cmd.Flags().String("display-dir", "", "directory for saved display crops (default: displays)")
	return cmd
}

// watchEvent is one JSON line of watch output.
type watchEvent struct {
	Path    string         `json:"path"`
	TakenAt string         `json:"taken_at"`
	Reading *meter.Reading `json:"reading"`
	Error   string         `json:"error,omitempty"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	wc := watch.DefaultConfig()
	wc.Debounce = time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	wc.Recursive = cfg.Watch.Recursive
	if cmd.Flags().Changed("debounce") {
		wc.Debounce, _ = cmd.Flags().GetDuration("debounce")
	}
	if cmd.Flags().Changed("recursive") {
		wc.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	wc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	wc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")

	reader := buildReader(cfg, readerOptions{
		diagnostics: cfg.OCR.Diagnostics,
		displayDir:  displayDirFor(cmd, cfg),
	})

	var mu sync.Mutex
	enc := json.NewEncoder(cmd.OutOrStdout())
	handler := func(path string, r *meter.Reading, err error) {
		ev := watchEvent{Path: path, TakenAt: batch.NoEXIF, Reading: r}
		if s, ok := batch.TakenAt(path); ok {
			ev.TakenAt = s
		}
		if err != nil {
			ev.Error = err.Error()
		}
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			slog.Warn("cannot write watch event", "file", path, "error", err)
		}
	}

	w, err := watch.New(reader, wc, handler)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	for _, dir := range args {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("cannot watch %s: %w", dir, err)
		}
	}
	slog.Info("Watching for meter photos", "dirs", args, "recursive", wc.Recursive, "debounce", wc.Debounce.String())
	return w.Run(cmd.Context())
}
