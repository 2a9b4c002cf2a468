// Package meter runs the full per-photo flow: hue classification, display
// location and reading extraction.
package meter

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/common"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/utils"
)

// Option configures a Reader.
type Option func(*Reader)

// WithDiagnostics keeps every OCR attempt in the reading.
func WithDiagnostics(enabled bool) Option {
	return func(r *Reader) { r.diagnostics = enabled }
}

// Reader reads meters. It is safe for concurrent use when its parts are.
type Reader struct {
	classifier  *classifier.Classifier
	locator     *locator.Locator
	extractor   *reading.Extractor
	diagnostics bool
}

// New assembles a reader from its stages.
func New(c *classifier.Classifier, l *locator.Locator, e *reading.Extractor, opts ...Option) *Reader {
	r := &Reader{classifier: c, locator: l, extractor: e}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classifier returns the classification stage.
func (r *Reader) Classifier() *classifier.Classifier { return r.classifier }

// Locator returns the display location stage.
func (r *Reader) Locator() *locator.Locator { return r.locator }

// ReadFile loads path and reads it. Load and decode errors are returned;
// stage failures are recorded in the reading.
func (r *Reader) ReadFile(ctx context.Context, path string) (*Reading, error) {
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return r.ReadImage(ctx, img, path), nil
}

// ReadImage classifies img, locates its display and extracts the reading.
// It never fails: every stage error ends up in Reading.Errors.
func (r *Reader) ReadImage(ctx context.Context, img image.Image, name string) *Reading {
	total := common.NewNamedTimer("total")
	out := &Reading{File: name}

	t := common.NewNamedTimer("classify")
	r.classify(img, out)
	t.Stop()
	out.Processing.ClassifyMs = t.Milliseconds()

	t = common.NewNamedTimer("locate")
	loc := r.locate(img, name, out)
	t.Stop()
	out.Processing.LocateMs = t.Milliseconds()

	if loc != nil {
		t = common.NewNamedTimer("extract")
		r.extract(ctx, loc.Region, out)
		t.Stop()
		out.Processing.ExtractMs = t.Milliseconds()
	}

	total.Stop()
	out.Processing.TotalMs = total.Milliseconds()

	slog.Debug("meter read",
		"file", name,
		"service_type", out.ServiceType.String(),
		"value", out.Value,
		"found", out.Found,
		"errors", len(out.Errors),
		"total_ms", out.Processing.TotalMs)
	return out
}

func (r *Reader) classify(img image.Image, out *Reading) {
	defer recoverStage("classify", out)
	if r.classifier == nil {
		return
	}
	res, err := r.classifier.Classify(img)
	out.ServiceType = res.Type
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("classify: %v", err))
		return
	}
	out.Classification = &res
}

func (r *Reader) locate(img image.Image, name string, out *Reading) (res *locator.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("locate: panic: %v", rec))
			res = nil
		}
	}()
	if r.locator == nil {
		out.Errors = append(out.Errors, "locate: no locator configured")
		return nil
	}
	res, err := r.locator.Locate(img, name)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("locate: %v", err))
		return nil
	}
	out.Region = res.Region
	out.Display = &DisplayInfo{
		Box:        BoxFromRect(res.Box),
		SourceBox:  BoxFromRect(res.SourceBox()),
		Fallback:   res.Fallback,
		Candidates: len(res.Candidates),
		SavedPath:  res.SavedPath,
	}
	if res.SaveError != "" {
		out.Errors = append(out.Errors, fmt.Sprintf("save display: %s", res.SaveError))
	}
	return res
}

func (r *Reader) extract(ctx context.Context, region image.Image, out *Reading) {
	defer recoverStage("extract", out)
	if r.extractor == nil {
		out.Errors = append(out.Errors, "extract: no extractor configured")
		return
	}
	res, err := r.extractor.Extract(ctx, region)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("extract: %v", err))
		return
	}
	out.Value = res.Value
	out.Found = res.Found
	out.Candidates = res.Candidates
	if r.diagnostics {
		out.Attempts = res.Attempts
	}
}

func recoverStage(stage string, out *Reading) {
	if rec := recover(); rec != nil {
		slog.Error("stage panicked", "stage", stage, "file", out.File, "panic", rec)
		out.Errors = append(out.Errors, fmt.Sprintf("%s: panic: %v", stage, rec))
	}
}

// Diagnostics returns a copy of the reader that keeps OCR attempts when
// enabled is set. The stages are shared.
func (r *Reader) Diagnostics(enabled bool) *Reader {
	c := *r
	c.diagnostics = enabled
	return &c
}
