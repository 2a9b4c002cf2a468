package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/meterread/internal/meter"
	"gopkg.in/yaml.v3"
)

// Row is one line of the batch report.
type Row struct {
	File        string `json:"file" yaml:"file"`
	Path        string `json:"path" yaml:"path"`
	TakenAt     string `json:"taken_at" yaml:"taken_at"`
	ServiceType string `json:"service_type" yaml:"service_type"`
	Reading     string `json:"reading" yaml:"reading"`
	Found       bool   `json:"found" yaml:"found"`
	Display     string `json:"display" yaml:"display"`
	Fallback    bool   `json:"fallback" yaml:"fallback"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// buildRow flattens a reading of the photo at path into a report row.
func buildRow(path string, r *meter.Reading) Row {
	return NewRow(path, takenAtOrDefault(path), r)
}

// NewRow flattens a reading into a report row. A nil reading yields a row
// without a value.
func NewRow(path, takenAt string, r *meter.Reading) Row {
	row := Row{
		File:    filepath.Base(path),
		Path:    path,
		TakenAt: takenAt,
	}
	if r == nil {
		row.ServiceType = "Unknown"
		row.Reading = "No reading found"
		return row
	}
	row.ServiceType = r.ServiceType.String()
	row.Reading = r.DisplayValue()
	row.Found = r.Found
	if r.Display != nil {
		b := r.Display.SourceBox
		row.Display = fmt.Sprintf("%d,%d %dx%d", b.X, b.Y, b.W, b.H)
		row.Fallback = r.Display.Fallback
	}
	row.Error = strings.Join(r.Errors, "; ")
	return row
}

type reportEntry struct {
	Row     `yaml:",inline"`
	Details *meter.Reading `json:"details,omitempty" yaml:"details,omitempty"`
}

type report struct {
	Images []reportEntry `json:"images" yaml:"images"`
}

func newReport(rows []Row, readings []*meter.Reading) report {
	rep := report{Images: make([]reportEntry, len(rows))}
	for i, row := range rows {
		rep.Images[i].Row = row
		if i < len(readings) {
			rep.Images[i].Details = readings[i]
		}
	}
	return rep
}

// FormatRows renders rows in a text-based format. The json and yaml formats
// attach readings[i] to row i when present.
func FormatRows(rows []Row, readings []*meter.Reading, format string) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(rows, readings)
	case FormatCSV:
		return formatCSV(rows)
	case FormatYAML:
		return formatYAML(rows, readings)
	case FormatText, "":
		return formatText(rows), nil
	default:
		return "", fmt.Errorf("unsupported text format %q", format)
	}
}

func formatJSON(rows []Row, readings []*meter.Reading) (string, error) {
	bts, err := json.MarshalIndent(newReport(rows, readings), "", "  ")
	return string(bts), err
}

func formatYAML(rows []Row, readings []*meter.Reading) (string, error) {
	bts, err := yaml.Marshal(newReport(rows, readings))
	return string(bts), err
}

func formatCSV(rows []Row) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write([]string{
		"file", "taken_at", "service_type", "reading", "found", "display", "fallback", "error",
	}); err != nil {
		return "", err
	}
	for _, r := range rows {
		if err := writer.Write([]string{
			r.File,
			r.TakenAt,
			r.ServiceType,
			r.Reading,
			strconv.FormatBool(r.Found),
			r.Display,
			strconv.FormatBool(r.Fallback),
			r.Error,
		}); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(rows []Row) string {
	var output strings.Builder
	for i, r := range rows {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", r.Path)
		fmt.Fprintf(&output, "Date taken:   %s\n", r.TakenAt)
		fmt.Fprintf(&output, "Service type: %s\n", r.ServiceType)
		fmt.Fprintf(&output, "Reading:      %s\n", r.Reading)
		if r.Display != "" {
			display := r.Display
			if r.Fallback {
				display += " (fallback)"
			}
			fmt.Fprintf(&output, "Display:      %s\n", display)
		}
		if r.Error != "" {
			fmt.Fprintf(&output, "Error:        %s\n", r.Error)
		}
	}
	return output.String()
}
