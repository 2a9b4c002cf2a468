package meter

import (
	"image"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/reading"
)

// Box is an axis-aligned rectangle in pixel units.
type Box struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	W int `json:"w" yaml:"w"`
	H int `json:"h" yaml:"h"`
}

// BoxFromRect converts an image rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect converts the box back to an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// DisplayInfo describes where the display window was found.
type DisplayInfo struct {
	Box        Box    `json:"box" yaml:"box"`               // rough-crop coordinates
	SourceBox  Box    `json:"source_box" yaml:"source_box"` // photo coordinates
	Fallback   bool   `json:"fallback" yaml:"fallback"`
	Candidates int    `json:"candidates" yaml:"candidates"`
	SavedPath  string `json:"saved_path,omitempty" yaml:"saved_path,omitempty"`
}

// Processing holds per-stage durations in milliseconds.
type Processing struct {
	ClassifyMs float64 `json:"classify_ms" yaml:"classify_ms"`
	LocateMs   float64 `json:"locate_ms" yaml:"locate_ms"`
	ExtractMs  float64 `json:"extract_ms" yaml:"extract_ms"`
	TotalMs    float64 `json:"total_ms" yaml:"total_ms"`
}

// Reading is the full per-photo outcome.
type Reading struct {
	File           string                 `json:"file" yaml:"file"`
	ServiceType    classifier.ServiceType `json:"service_type" yaml:"service_type"`
	Classification *classifier.Result     `json:"classification,omitempty" yaml:"classification,omitempty"`
	Display        *DisplayInfo           `json:"display,omitempty" yaml:"display,omitempty"`
	Value          string                 `json:"value" yaml:"value"`
	Found          bool                   `json:"found" yaml:"found"`
	Candidates     []reading.Candidate    `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Attempts       []reading.Attempt      `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Errors         []string               `json:"errors,omitempty" yaml:"errors,omitempty"`
	Processing     Processing             `json:"processing" yaml:"processing"`

	Region image.Image `json:"-" yaml:"-"`
}

// Outcome values reported by Reading.Outcome.
const (
	OutcomeFound = "found"
	OutcomeNone  = "none"
	OutcomeError = "error"
)

// Outcome summarizes the reading as found, none or error.
func (r *Reading) Outcome() string {
	switch {
	case r.Found:
		return OutcomeFound
	case len(r.Errors) > 0:
		return OutcomeError
	default:
		return OutcomeNone
	}
}

// DisplayValue returns the reading or a placeholder when none was found.
func (r *Reading) DisplayValue() string {
	if r.Found {
		return r.Value
	}
	return "No reading found"
}
