package reading

import (
	"context"
	"image"
	"strconv"
)

// SegmentationMode is a Tesseract page segmentation mode.
type SegmentationMode int

const (
	SingleLine SegmentationMode = 7
	SingleWord SegmentationMode = 8
	RawLine    SegmentationMode = 13
)

func (m SegmentationMode) String() string {
	switch m {
	case SingleLine:
		return "single_line"
	case SingleWord:
		return "single_word"
	case RawLine:
		return "raw_line"
	default:
		return "psm_" + strconv.Itoa(int(m))
	}
}

// Variant names one preprocessed rendition of the display region.
type Variant string

const (
	VariantOriginal  Variant = "original"
	VariantCLAHE     Variant = "clahe"
	VariantOtsu      Variant = "otsu"
	VariantInverted  Variant = "inverted"
	VariantSharpened Variant = "sharpened"
)

// Variants lists the renditions in the order they are recognized.
var Variants = []Variant{VariantOriginal, VariantCLAHE, VariantOtsu, VariantInverted, VariantSharpened}

// RecognizeOptions constrains one engine invocation.
type RecognizeOptions struct {
	Whitelist string
	Mode      SegmentationMode
}

// Engine turns an image into raw text.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)

// Recognize calls f.
func (f EngineFunc) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error) {
	return f(ctx, img, opts)
}

// Candidate is one numeric token found in engine output.
type Candidate struct {
	Value      string           `json:"value" yaml:"value"`
	HasDecimal bool             `json:"has_decimal" yaml:"has_decimal"`
	DigitCount int              `json:"digit_count" yaml:"digit_count"`
	Variant    Variant          `json:"variant" yaml:"variant"`
	Mode       SegmentationMode `json:"mode" yaml:"mode"`
}

// Attempt records a single engine invocation.
type Attempt struct {
	Variant Variant          `json:"variant" yaml:"variant"`
	Mode    SegmentationMode `json:"mode" yaml:"mode"`
	Text    string           `json:"text" yaml:"text"`
	Err     string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of one extraction.
type Result struct {
	Value      string      `json:"value" yaml:"value"`
	Found      bool        `json:"found" yaml:"found"`
	Candidates []Candidate `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	Attempts   []Attempt   `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}
