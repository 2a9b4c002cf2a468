package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Meter body colors.
var (
	HotBody  = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	ColdBody = color.RGBA{R: 30, G: 60, B: 200, A: 255}
	Gray     = color.RGBA{R: 160, G: 160, B: 160, A: 255}
)

// MeterPhotoConfig describes a synthetic meter photo.
type MeterPhotoConfig struct {
	Width, Height int
	Background    color.Color
	Body          color.Color
	Display       image.Rectangle // photo coordinates, empty for no display
	DisplayColor  color.Color
	DigitColor    color.Color
	Reading       string
}

// DefaultMeterPhotoConfig returns a 1000x800 hot water meter whose 280x80
// display sits inside the default rough search area.
func DefaultMeterPhotoConfig() MeterPhotoConfig {
	return MeterPhotoConfig{
		Width:        1000,
		Height:       800,
		Background:   color.White,
		Body:         HotBody,
		Display:      image.Rect(350, 360, 630, 440),
		DisplayColor: color.RGBA{R: 45, G: 45, B: 45, A: 255},
		DigitColor:   color.RGBA{R: 235, G: 235, B: 235, A: 255},
		Reading:      "00118.664",
	}
}

// GenerateMeterPhoto renders a meter body with a dark display window and
// the reading drawn into it.
func GenerateMeterPhoto(config MeterPhotoConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, config.Width, config.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{config.Background}, image.Point{}, draw.Src)

	body := image.Rect(config.Width/10, config.Height/8, config.Width*9/10, config.Height*7/8)
	draw.Draw(img, body, &image.Uniform{config.Body}, image.Point{}, draw.Src)

	if config.Display.Empty() {
		return img
	}
	draw.Draw(img, config.Display, &image.Uniform{config.DisplayColor}, image.Point{}, draw.Src)

	if config.Reading != "" {
		face := basicfont.Face7x13
		textW := font.MeasureString(face, config.Reading).Ceil()
		textH := face.Metrics().Ascent.Ceil()
		d := &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{config.DigitColor},
			Face: face,
			Dot: fixed.P(
				config.Display.Min.X+(config.Display.Dx()-textW)/2,
				config.Display.Min.Y+(config.Display.Dy()+textH)/2,
			),
		}
		d.DrawString(config.Reading)
	}
	return img
}

// WriteMeterPhoto saves a generated photo as JPEG or PNG depending on the
// extension of name and returns its path inside dir.
func WriteMeterPhoto(t *testing.T, dir, name string, config MeterPhotoConfig) string {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(GenerateMeterPhoto(config), path, imaging.JPEGQuality(95)))
	return path
}

// WriteMeterPhotos writes n photos alternating hot and cold bodies and
// returns their paths in order.
func WriteMeterPhotos(t *testing.T, dir string, n int) []string {
	t.Helper()

	paths := make([]string, 0, n)
	for i := range n {
		cfg := DefaultMeterPhotoConfig()
		if i%2 == 1 {
			cfg.Body = ColdBody
		}
		paths = append(paths, WriteMeterPhoto(t, dir, fmt.Sprintf("meter_%02d.png", i), cfg))
	}
	return paths
}
