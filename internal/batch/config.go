package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/MeKo-Tech/meterread/internal/common"
	"github.com/MeKo-Tech/meterread/internal/meter"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
	FormatXLSX = "xlsx"
)

// Formats lists every supported report format.
var Formats = []string{FormatText, FormatJSON, FormatCSV, FormatYAML, FormatXLSX}

// DefaultIncludePatterns are matched case-insensitively against file names.
var DefaultIncludePatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.bmp"}

// DefaultExcludePatterns skip crops written by the locator.
var DefaultExcludePatterns = []string{"*_display.*"}

// Config holds all configuration for batch processing.
type Config struct {
	// Parallel processing settings
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Output settings
	Format     string
	OutputFile string
	ResultsDir string // default directory for xlsx reports

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:          runtime.NumCPU(),
		ContinueOnError:  true,
		IncludePatterns:  slices.Clone(DefaultIncludePatterns),
		ExcludePatterns:  slices.Clone(DefaultExcludePatterns),
		Format:           FormatText,
		ResultsDir:       "results",
		ShowProgress:     true,
		ShowStats:        true,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the output format and worker count.
func (c *Config) Validate() error {
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("invalid format %q (must be one of %v)", c.Format, Formats)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	return nil
}

// DefaultXLSXPath names a spreadsheet after the current minute, e.g.
// results/2024.05.17T08.30__images.xlsx.
func DefaultXLSXPath(dir string, now time.Time) string {
	if dir == "" {
		dir = "results"
	}
	return filepath.Join(dir, now.Format("2006.01.02T15.04")+"__images.xlsx")
}

// Result holds the result of batch processing.
type Result struct {
	Readings    []*meter.Reading
	Rows        []Row
	ImagePaths  []string
	Duration    time.Duration
	WorkerCount int
}

// FormatResults renders the report in a text-based format.
func (r *Result) FormatResults(format string) (string, error) {
	return FormatRows(r.Rows, r.Readings, format)
}

// SaveResults writes the report to outputFile, or to w when no file is
// given. The xlsx format always goes to a file.
func (r *Result) SaveResults(w io.Writer, format, outputFile, resultsDir string, quiet bool) error {
	if format == FormatXLSX {
		if outputFile == "" {
			outputFile = DefaultXLSXPath(resultsDir, time.Now())
		}
		if err := WriteXLSX(outputFile, r.Rows); err != nil {
			return fmt.Errorf("failed to write spreadsheet: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Excel file created: %s\n", outputFile)
		}
		return nil
	}

	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.MkdirAll(filepath.Dir(outputFile), 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, _ = fmt.Fprint(w, output)
	return nil
}

// Stats summarizes a batch run.
type Stats struct {
	Total            int
	Found            int
	NoReading        int
	Failed           int
	HotWater         int
	ColdWater        int
	Unknown          int
	Fallbacks        int
	Duration         time.Duration
	AveragePerImage  time.Duration
	ThroughputPerSec float64
}

// Stats computes run statistics.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.ImagePaths), Duration: r.Duration}
	for _, rd := range r.Readings {
		if rd == nil {
			s.Failed++
			continue
		}
		switch rd.Outcome() {
		case meter.OutcomeFound:
			s.Found++
		case meter.OutcomeError:
			s.Failed++
		default:
			s.NoReading++
		}
		switch rd.ServiceType.Code() {
		case "hot":
			s.HotWater++
		case "cold":
			s.ColdWater++
		default:
			s.Unknown++
		}
		if rd.Display != nil && rd.Display.Fallback {
			s.Fallbacks++
		}
	}
	if processed := len(r.Readings); processed > 0 && r.Duration > 0 {
		s.AveragePerImage = r.Duration / time.Duration(processed)
		s.ThroughputPerSec = float64(processed) / r.Duration.Seconds()
	}
	return s
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer, quiet bool) {
	if quiet {
		return
	}
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Readings found: %d\n", s.Found)
	_, _ = fmt.Fprintf(w, "  No reading: %d\n", s.NoReading)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Hot water: %d, Cold water: %d, Unknown: %d\n", s.HotWater, s.ColdWater, s.Unknown)
	_, _ = fmt.Fprintf(w, "  Display fallbacks: %d\n", s.Fallbacks)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", s.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", s.ThroughputPerSec)
	_, _ = fmt.Fprintf(w, "  Memory: %s\n", common.GetMemoryStats())
}
