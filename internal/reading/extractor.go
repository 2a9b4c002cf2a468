// Package reading extracts the numeric meter reading from a display crop.
//
// The crop is rendered in several preprocessing variants, each variant is
// recognized in several segmentation modes, and the numeric tokens from all
// attempts compete for the final value.
package reading

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ErrNilRegion is returned when Extract receives no image.
var ErrNilRegion = errors.New("display region is nil")

// Extractor runs the recognition attempts for a display region. It is safe
// for concurrent use when its engine is.
type Extractor struct {
	engine Engine
	config Config
}

// NewExtractor creates an extractor on top of engine.
func NewExtractor(engine Engine, config Config) *Extractor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Extractor{engine: engine, config: config}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.config }

// Extract recognizes region and selects the most plausible reading. Engine
// failures are recorded in Result.Attempts and do not stop the other
// attempts. Found is false when no attempt produced a candidate.
func (e *Extractor) Extract(ctx context.Context, region image.Image) (Result, error) {
	if region == nil {
		return Result{}, ErrNilRegion
	}
	prepared, err := Preprocess(region, e.config)
	if err != nil {
		return Result{}, err
	}

	modes := e.config.Modes
	attempts := make([]Attempt, len(prepared)*len(modes))

	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for vi, p := range prepared {
		for mi, mode := range modes {
			if ctx.Err() != nil {
				break
			}
			idx := vi*len(modes) + mi
			attempts[idx] = Attempt{Variant: p.Variant, Mode: mode}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				defer func() {
					if rec := recover(); rec != nil {
						attempts[idx].Err = fmt.Sprintf("engine panic: %v", rec)
					}
				}()
				text, err := e.engine.Recognize(ctx, p.Image, RecognizeOptions{
					Whitelist: e.config.Whitelist,
					Mode:      mode,
				})
				attempts[idx].Text = text
				if err != nil {
					attempts[idx].Err = err.Error()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Attempts: attempts}
	for _, a := range attempts {
		if a.Err != "" {
			slog.Debug("ocr attempt failed", "variant", string(a.Variant), "mode", a.Mode.String(), "error", a.Err)
			continue
		}
		res.Candidates = append(res.Candidates, ParseCandidates(a.Text, e.config.MinDigits, a.Variant, a.Mode)...)
	}

	if best, ok := SelectBest(res.Candidates); ok {
		res.Value = best.Value
		res.Found = true
	}

	slog.Debug("extracted meter reading",
		"value", res.Value,
		"found", res.Found,
		"candidates", len(res.Candidates),
		"attempts", len(res.Attempts))
	return res, nil
}
