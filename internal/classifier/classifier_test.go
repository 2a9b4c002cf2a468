package classifier

import (
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func TestClassify_UniformColors(t *testing.T) {
	clf := New(DefaultConfig())

	tests := []struct {
		name     string
		img      image.Image
		expected ServiceType
	}{
		{name: "saturated red", img: uniform(120, 90, color.RGBA{220, 30, 30, 255}), expected: HotWater},
		{name: "pure red", img: uniform(64, 64, color.RGBA{255, 0, 0, 255}), expected: HotWater},
		{name: "magenta-red near 360", img: uniform(64, 64, color.RGBA{230, 20, 40, 255}), expected: HotWater},
		{name: "blue", img: uniform(120, 90, color.RGBA{30, 60, 220, 255}), expected: ColdWater},
		{name: "pure blue", img: uniform(64, 64, color.RGBA{0, 0, 255, 255}), expected: ColdWater},
		{name: "gray", img: uniform(120, 90, color.RGBA{128, 128, 128, 255}), expected: Unknown},
		{name: "white", img: uniform(50, 50, color.White), expected: Unknown},
		{name: "dark red below value floor", img: uniform(50, 50, color.RGBA{50, 0, 0, 255}), expected: Unknown},
		{name: "green matches neither band", img: uniform(50, 50, color.RGBA{20, 200, 20, 255}), expected: Unknown},
		{name: "grayscale input", img: image.NewGray(image.Rect(0, 0, 40, 30)), expected: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := clf.Classify(tt.img)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Type)
		})
	}
}

func TestClassify_EqualCountsAreUnknown(t *testing.T) {
	clf := New(DefaultConfig())

	res, err := clf.Classify(uniform(80, 60, color.RGBA{100, 100, 100, 255}))
	require.NoError(t, err)
	assert.Zero(t, res.RedPixels)
	assert.Zero(t, res.BluePixels)
	assert.Equal(t, Unknown, res.Type)
}

func TestClassify_MajorityVote(t *testing.T) {
	clf := New(DefaultConfig())

	img := uniform(100, 100, color.RGBA{0, 0, 255, 255})
	draw.Draw(img, image.Rect(0, 0, 70, 100), &image.Uniform{C: color.RGBA{255, 0, 0, 255}}, image.Point{}, draw.Src)

	res, err := clf.Classify(img)
	require.NoError(t, err)
	assert.Equal(t, HotWater, res.Type)
	assert.Greater(t, res.RedPixels, res.BluePixels)
	assert.Positive(t, res.BluePixels)
}

func TestClassify_CountsOnFixedCanvas(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 40, 30
	clf := New(cfg)

	res, err := clf.Classify(uniform(200, 100, color.RGBA{0, 0, 255, 255}))
	require.NoError(t, err)
	assert.Equal(t, 40*30, res.BluePixels)
	assert.Equal(t, 40*30, res.ColoredPixels)
	assert.Equal(t, ColdWater, res.Type)
}

func TestClassify_Idempotent(t *testing.T) {
	clf := New(DefaultConfig())
	img := uniform(90, 70, color.RGBA{200, 40, 40, 255})
	draw.Draw(img, image.Rect(10, 10, 40, 40), &image.Uniform{C: color.RGBA{40, 40, 200, 255}}, image.Point{}, draw.Src)

	first, err := clf.Classify(img)
	require.NoError(t, err)
	second, err := clf.Classify(img)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClassify_InvalidInput(t *testing.T) {
	clf := New(DefaultConfig())

	res, err := clf.Classify(nil)
	require.Error(t, err)
	assert.Equal(t, Unknown, res.Type)

	res, err = clf.Classify(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
	assert.Equal(t, Unknown, res.Type)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Width = 0
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.BlueHueMin = 0.9
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MinValue = 1.5
	require.Error(t, bad.Validate())
}

func TestServiceTypeEncoding(t *testing.T) {
	assert.Equal(t, "Hot Water", HotWater.String())
	assert.Equal(t, "Cold Water", ColdWater.String())
	assert.Equal(t, "Unknown", Unknown.String())

	data, err := json.Marshal(struct {
		T ServiceType `json:"t"`
	}{T: ColdWater})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"cold"}`, string(data))

	var decoded ServiceType
	require.NoError(t, json.Unmarshal([]byte(`"Hot Water"`), &decoded))
	assert.Equal(t, HotWater, decoded)

	_, err = ParseServiceType("lukewarm")
	require.Error(t, err)
}

func TestClassify_BlueBandUpperEdge(t *testing.T) {
	clf := New(DefaultConfig())

	// Hue is exactly 259.2 degrees (0.72), the inclusive upper blue bound.
	res, err := clf.Classify(uniform(800, 600, color.RGBA{24, 0, 75, 255}))
	require.NoError(t, err)
	assert.Equal(t, ColdWater, res.Type)
	assert.Equal(t, 800*600, res.BluePixels)
	assert.Equal(t, 800*600, res.ColoredPixels)
}

func TestHue(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b float64
		want    float64
	}{
		{name: "red", r: 1, want: 0},
		{name: "green", g: 1, want: 120},
		{name: "blue", b: 1, want: 240},
		{name: "gray", r: 0.5, g: 0.5, b: 0.5, want: 240},
		{name: "magenta-red", r: 1, b: 0.25, want: 345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, hue(tt.r, tt.g, tt.b), 1e-6)
		})
	}

	assert.LessOrEqual(t, hue(24.0/255, 0, 75.0/255)/360, 0.72)
}
