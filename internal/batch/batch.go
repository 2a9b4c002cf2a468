// Package batch reads folders of meter photos and writes reports.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/meterread/internal/meter"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// ProcessBatch discovers images under paths and reads them with reader.
// Progress goes to progressOut when enabled and to the log otherwise.
func ProcessBatch(ctx context.Context, paths []string, reader *meter.Reader, config *Config, progressOut io.Writer) (*Result, error) {
	files, err := discoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	var progress meter.ProgressCallback
	switch {
	case config.Quiet:
	case config.ShowProgress && progressOut != nil:
		progress = meter.NewConsoleProgressCallback(progressOut, "Processing: ").
			WithUpdateInterval(config.ProgressInterval)
	default:
		progress = meter.NewLogProgressCallback(nil, 10)
	}

	start := time.Now()
	readings, err := reader.ReadFiles(ctx, files, meter.ParallelConfig{
		MaxWorkers:       config.Workers,
		ContinueOnError:  config.ContinueOnError,
		ProgressCallback: progress,
	})
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	rows := make([]Row, len(files))
	for i, path := range files {
		rows[i] = buildRow(path, readings[i])
	}

	return &Result{
		Readings:    readings,
		Rows:        rows,
		ImagePaths:  files,
		Duration:    duration,
		WorkerCount: config.Workers,
	}, nil
}
