// Package locator finds the dark digit window inside a meter photo.
//
// The search is restricted to a rough central crop. Pixels inside a dark
// color band are cleaned up with morphology, external blobs become
// candidates, and the candidate with the best display-like aspect wins.
// When nothing qualifies a fixed fraction of the rough crop is used instead.
package locator

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/meterread/internal/mempool"
	"github.com/MeKo-Tech/meterread/internal/utils"
)

// ErrEmptyCrop is returned when the rough or fallback crop has zero area.
var ErrEmptyCrop = errors.New("crop has zero area")

// Config holds the display search parameters.
type Config struct {
	RoughLeft   float64 // Rough crop left edge as fraction of width (default: 0.20)
	RoughRight  float64 // Rough crop right edge (default: 0.80)
	RoughTop    float64 // Rough crop top edge as fraction of height (default: 0.35)
	RoughBottom float64 // Rough crop bottom edge (default: 0.70)

	DarkMin [3]uint8 // Inclusive lower bound per R,G,B channel (default: 20,20,20)
	DarkMax [3]uint8 // Inclusive upper bound per R,G,B channel (default: 85,85,85)

	CloseKernel int // Closing kernel size (default: 10)
	OpenKernel  int // Opening kernel size (default: 3)

	MinWidth        int     // Width must exceed this (default: 80)
	MinHeight       int     // Height must exceed this (default: 20)
	MinArea         int     // Box area must exceed this (default: 2000)
	MinAspect       float64 // Exclusive lower aspect bound (default: 2.0)
	MaxAspect       float64 // Exclusive upper aspect bound (default: 6.0)
	PreferredAspect float64 // Aspect of a typical display window (default: 3.5)

	PadFraction float64 // Padding per side as fraction of box size (default: 0.15)
	MinPadX     int     // Minimum horizontal padding (default: 20)
	MinPadY     int     // Minimum vertical padding (default: 15)

	FallbackLeft   float64 // Fallback crop of the rough crop (default: 0.10)
	FallbackRight  float64 // (default: 0.90)
	FallbackTop    float64 // (default: 0.15)
	FallbackBottom float64 // (default: 0.70)
}

// DefaultConfig returns the parameters tuned on real meter photos.
func DefaultConfig() Config {
	return Config{
		RoughLeft:       0.20,
		RoughRight:      0.80,
		RoughTop:        0.35,
		RoughBottom:     0.70,
		DarkMin:         [3]uint8{20, 20, 20},
		DarkMax:         [3]uint8{85, 85, 85},
		CloseKernel:     10,
		OpenKernel:      3,
		MinWidth:        80,
		MinHeight:       20,
		MinArea:         2000,
		MinAspect:       2.0,
		MaxAspect:       6.0,
		PreferredAspect: 3.5,
		PadFraction:     0.15,
		MinPadX:         20,
		MinPadY:         15,
		FallbackLeft:    0.10,
		FallbackRight:   0.90,
		FallbackTop:     0.15,
		FallbackBottom:  0.70,
	}
}

// Validate checks fractions, kernels and the aspect window.
func (c Config) Validate() error {
	if err := validateSpan("rough horizontal", c.RoughLeft, c.RoughRight); err != nil {
		return err
	}
	if err := validateSpan("rough vertical", c.RoughTop, c.RoughBottom); err != nil {
		return err
	}
	if err := validateSpan("fallback horizontal", c.FallbackLeft, c.FallbackRight); err != nil {
		return err
	}
	if err := validateSpan("fallback vertical", c.FallbackTop, c.FallbackBottom); err != nil {
		return err
	}
	for i := range c.DarkMin {
		if c.DarkMin[i] > c.DarkMax[i] {
			return fmt.Errorf("dark band channel %d: min %d exceeds max %d", i, c.DarkMin[i], c.DarkMax[i])
		}
	}
	if c.CloseKernel < 1 || c.OpenKernel < 1 {
		return fmt.Errorf("morphology kernels must be positive (close=%d, open=%d)", c.CloseKernel, c.OpenKernel)
	}
	if c.MinAspect >= c.MaxAspect {
		return fmt.Errorf("min aspect %.2f must be below max aspect %.2f", c.MinAspect, c.MaxAspect)
	}
	if c.PadFraction < 0 || c.MinPadX < 0 || c.MinPadY < 0 {
		return errors.New("padding must not be negative")
	}
	return nil
}

func validateSpan(name string, lo, hi float64) error {
	if lo < 0 || hi > 1 || lo >= hi {
		return fmt.Errorf("invalid %s crop [%.2f, %.2f]", name, lo, hi)
	}
	return nil
}

// Candidate is a blob that passed the geometric filters.
type Candidate struct {
	Box    image.Rectangle `json:"box"`
	Area   int             `json:"area"`
	Aspect float64         `json:"aspect"`
	Score  float64         `json:"score"`
}

// Result describes the located display.
type Result struct {
	Region     image.Image     `json:"-"`
	Box        image.Rectangle `json:"box"`         // padded, rough-crop coordinates
	Detected   image.Rectangle `json:"detected"`    // unpadded winner, empty on fallback
	SearchArea image.Rectangle `json:"search_area"` // rough crop, source coordinates
	Fallback   bool            `json:"fallback"`
	Candidates []Candidate     `json:"candidates,omitempty"`
	SavedPath  string          `json:"saved_path,omitempty"`
	SaveError  string          `json:"save_error,omitempty"`
}

// SourceBox returns Box in the coordinates of the source photo.
func (r *Result) SourceBox() image.Rectangle {
	return r.Box.Add(r.SearchArea.Min)
}

// Option configures a Locator.
type Option func(*Locator)

// WithSink persists every located region through s.
func WithSink(s Sink) Option {
	return func(l *Locator) { l.sink = s }
}

// Locator searches meter photos for the display window. It is safe for
// concurrent use as long as its sink is.
type Locator struct {
	config Config
	sink   Sink
}

// New creates a locator.
func New(config Config, opts ...Option) *Locator {
	l := &Locator{config: config}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the locator configuration.
func (l *Locator) Config() Config { return l.config }

// Locate returns the display region of img. name is only used to label the
// persisted crop.
func (l *Locator) Locate(img image.Image, name string) (*Result, error) {
	if err := utils.CheckImage("locate", img); err != nil {
		return nil, err
	}

	b := img.Bounds()
	search := utils.FractionRect(b.Dx(), b.Dy(),
		l.config.RoughLeft, l.config.RoughRight, l.config.RoughTop, l.config.RoughBottom)
	if search.Empty() {
		return nil, &utils.ImageProcessingError{Operation: "locate", Err: fmt.Errorf("rough %w: %v", ErrEmptyCrop, search)}
	}
	crop := utils.CropImageRect(img, search)
	cw, ch := crop.Rect.Dx(), crop.Rect.Dy()

	res := &Result{SearchArea: search}

	mask := l.darkMask(crop)
	closed := ApplyMorphology(mask, cw, ch, MorphClosing, l.config.CloseKernel)
	mempool.PutBool(mask)
	cleaned := ApplyMorphology(closed, cw, ch, MorphOpening, l.config.OpenKernel)
	mempool.PutBool(closed)

	res.Candidates = l.candidates(externalBoxes(cleaned, cw, ch))
	mempool.PutBool(cleaned)

	best := -1
	bestScore := 0.0
	for i, c := range res.Candidates {
		if c.Score > bestScore {
			best, bestScore = i, c.Score
		}
	}

	if best >= 0 {
		res.Detected = res.Candidates[best].Box
		res.Box = l.pad(res.Detected, cw, ch)
	} else {
		res.Fallback = true
		res.Box = utils.FractionRect(cw, ch,
			l.config.FallbackLeft, l.config.FallbackRight, l.config.FallbackTop, l.config.FallbackBottom)
		if res.Box.Empty() {
			return nil, &utils.ImageProcessingError{Operation: "locate", Err: fmt.Errorf("fallback %w: %v", ErrEmptyCrop, res.Box)}
		}
	}
	res.Region = utils.CropImageRect(crop, res.Box)

	slog.Debug("located display region",
		"name", name,
		"search_area", search.String(),
		"box", res.Box.String(),
		"candidates", len(res.Candidates),
		"fallback", res.Fallback)

	if l.sink != nil {
		path, err := l.sink.Save(name, res.Region)
		if err != nil {
			slog.Warn("failed to save display crop", "name", name, "error", err)
			res.SaveError = err.Error()
		} else {
			res.SavedPath = path
		}
	}
	return res, nil
}

// darkMask marks crop pixels inside the dark band on every channel.
func (l *Locator) darkMask(crop *image.NRGBA) []bool {
	w, h := crop.Rect.Dx(), crop.Rect.Dy()
	mask := mempool.GetBool(w * h)
	lo, hi := l.config.DarkMin, l.config.DarkMax
	for y := 0; y < h; y++ {
		row := crop.Pix[y*crop.Stride : y*crop.Stride+w*4]
		for x := 0; x < w; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			mask[y*w+x] = r >= lo[0] && r <= hi[0] &&
				g >= lo[1] && g <= hi[1] &&
				b >= lo[2] && b <= hi[2]
		}
	}
	return mask
}

// candidates filters blob boxes by size and aspect and scores the survivors.
func (l *Locator) candidates(boxes []image.Rectangle) []Candidate {
	var out []Candidate
	for _, box := range boxes {
		w, h := box.Dx(), box.Dy()
		area := w * h
		if w <= l.config.MinWidth || h <= l.config.MinHeight || area <= l.config.MinArea {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect <= l.config.MinAspect || aspect >= l.config.MaxAspect {
			continue
		}
		out = append(out, Candidate{
			Box:    box,
			Area:   area,
			Aspect: aspect,
			Score:  l.score(area, aspect),
		})
	}
	return out
}

func (l *Locator) score(area int, aspect float64) float64 {
	diff := math.Abs(aspect - l.config.PreferredAspect)
	if diff == 0 {
		return float64(area)
	}
	return float64(area) / diff
}

// pad grows box on every side and clamps it to the cw×ch crop.
func (l *Locator) pad(box image.Rectangle, cw, ch int) image.Rectangle {
	w, h := box.Dx(), box.Dy()
	px := max(l.config.MinPadX, int(float64(w)*l.config.PadFraction))
	py := max(l.config.MinPadY, int(float64(h)*l.config.PadFraction))

	x := max(0, box.Min.X-px)
	y := max(0, box.Min.Y-py)
	w = min(cw-x, w+2*px)
	h = min(ch-y, h+2*py)
	return image.Rect(x, y, x+w, y+h)
}
