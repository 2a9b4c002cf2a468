// Package classifier labels water meter photos as hot or cold service from
// the dominant hue of the meter body.
package classifier

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Config holds the hue statistics thresholds. Hues are on a 0–1 circle.
type Config struct {
	Width         int     // Canvas width the photo is resized to (default: 800)
	Height        int     // Canvas height the photo is resized to (default: 600)
	MinSaturation float64 // Pixel counts as colored above this saturation (default: 0.15)
	MinValue      float64 // Pixel counts as colored above this value (default: 0.25)
	RedHueLow     float64 // Red band edge above 0 degrees, exclusive (default: 0.042)
	RedHueHigh    float64 // Red band edge below 360 degrees, exclusive (default: 0.958)
	BlueHueMin    float64 // Blue band lower bound, inclusive (default: 0.52)
	BlueHueMax    float64 // Blue band upper bound, inclusive (default: 0.72)
}

// DefaultConfig returns the thresholds tuned on real meter photos.
func DefaultConfig() Config {
	return Config{
		Width:         800,
		Height:        600,
		MinSaturation: 0.15,
		MinValue:      0.25,
		RedHueLow:     0.042,
		RedHueHigh:    0.958,
		BlueHueMin:    0.52,
		BlueHueMax:    0.72,
	}
}

// Validate checks that canvas size and hue bands are usable.
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid canvas size %dx%d", c.Width, c.Height)
	}
	for name, v := range map[string]float64{
		"min_saturation": c.MinSaturation,
		"min_value":      c.MinValue,
		"red_hue_low":    c.RedHueLow,
		"red_hue_high":   c.RedHueHigh,
		"blue_hue_min":   c.BlueHueMin,
		"blue_hue_max":   c.BlueHueMax,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid %s: %.3f (must be between 0.0 and 1.0)", name, v)
		}
	}
	if c.BlueHueMin > c.BlueHueMax {
		return errors.New("blue_hue_min must not exceed blue_hue_max")
	}
	if c.RedHueLow > c.RedHueHigh {
		return errors.New("red_hue_low must not exceed red_hue_high")
	}
	return nil
}

// Result is the outcome of one classification. The pixel counts are
// diagnostics only.
type Result struct {
	Type          ServiceType `json:"service_type" yaml:"service_type"`
	RedPixels     int         `json:"red_pixels" yaml:"red_pixels"`
	BluePixels    int         `json:"blue_pixels" yaml:"blue_pixels"`
	ColoredPixels int         `json:"colored_pixels" yaml:"colored_pixels"`
}

// Classifier performs hue majority votes. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	config Config
}

// New creates a classifier with the given thresholds.
func New(config Config) *Classifier {
	return &Classifier{config: config}
}

// Config returns the classifier configuration.
func (c *Classifier) Config() Config { return c.config }

// Classify votes red against blue over the saturated, bright pixels of img.
// Invalid input yields Unknown together with the error.
func (c *Classifier) Classify(img image.Image) (Result, error) {
	if err := utils.CheckImage("classify", img); err != nil {
		return Result{Type: Unknown}, err
	}

	canvas := imaging.Resize(img, c.config.Width, c.config.Height, imaging.CatmullRom)
	res := c.count(canvas)

	switch {
	case res.RedPixels > res.BluePixels:
		res.Type = HotWater
	case res.BluePixels > res.RedPixels:
		res.Type = ColdWater
	default:
		res.Type = Unknown
	}

	slog.Debug("classified meter color",
		"red_pixels", res.RedPixels,
		"blue_pixels", res.BluePixels,
		"colored_pixels", res.ColoredPixels,
		"service_type", res.Type.String())
	return res, nil
}

func (c *Classifier) count(canvas *image.NRGBA) Result {
	var res Result
	w, h := canvas.Rect.Dx(), canvas.Rect.Dy()
	for y := 0; y < h; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			px := colorful.Color{
				R: float64(row[i]) / 255.0,
				G: float64(row[i+1]) / 255.0,
				B: float64(row[i+2]) / 255.0,
			}
			_, s, v := px.Hsv()
			if s <= c.config.MinSaturation || v <= c.config.MinValue {
				continue
			}
			res.ColoredPixels++
			h := hue(px.R, px.G, px.B) / 360.0
			if h < c.config.RedHueLow || h > c.config.RedHueHigh {
				res.RedPixels++
			}
			if h >= c.config.BlueHueMin && h <= c.config.BlueHueMax {
				res.BluePixels++
			}
		}
	}
	return res
}

// hueEpsilon keeps the hue division finite on achromatic pixels.
const hueEpsilon = 1e-10

// hue returns the hue in degrees. The chroma divisor carries hueEpsilon, which
// pulls band-edge colors such as rgb(24,0,75) just inside 259.2 degrees.
// When channels tie for the maximum, blue wins over green over red.
func hue(r, g, b float64) float64 {
	maxC := max(r, g, b)
	diff := maxC - min(r, g, b)

	var h float64
	if maxC == r {
		h = math.Mod(60*((g-b)/(diff+hueEpsilon))+360, 360)
	}
	if maxC == g {
		h = 60*((b-r)/(diff+hueEpsilon)) + 120
	}
	if maxC == b {
		h = 60*((r-g)/(diff+hueEpsilon)) + 240
	}
	return h
}
