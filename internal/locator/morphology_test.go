package locator

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/mempool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maskFrom(rows ...string) ([]bool, int, int) {
	h := len(rows)
	w := len(rows[0])
	m := make([]bool, w*h)
	for y, r := range rows {
		for x, c := range r {
			m[y*w+x] = c == '#'
		}
	}
	return m, w, h
}

func setPixels(mask []bool, w int) []image.Point {
	var pts []image.Point
	for i, v := range mask {
		if v {
			pts = append(pts, image.Pt(i%w, i/w))
		}
	}
	return pts
}

func TestApplyMorphology_DilateOddKernel(t *testing.T) {
	mask, w, h := maskFrom(
		".....",
		".....",
		"..#..",
		".....",
		".....",
	)
	out := ApplyMorphology(mask, w, h, MorphDilate, 3)
	defer mempool.PutBool(out)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			inside := x >= 1 && x <= 3 && y >= 1 && y <= 3
			assert.Equal(t, inside, out[y*w+x], "pixel (%d,%d)", x, y)
		}
	}
}

func TestApplyMorphology_EvenKernelAnchor(t *testing.T) {
	mask, w, h := maskFrom(
		".....",
		".....",
		"..#..",
		".....",
		".....",
	)
	// Anchor at 1 covers offsets -1..0, so the pixel spreads right and down.
	out := ApplyMorphology(mask, w, h, MorphDilate, 2)
	defer mempool.PutBool(out)
	assert.ElementsMatch(t,
		[]image.Point{{2, 2}, {3, 2}, {2, 3}, {3, 3}},
		setPixels(out, w))

	block, w, h := maskFrom(
		".....",
		".....",
		"..##.",
		"..##.",
		".....",
	)
	eroded := ApplyMorphology(block, w, h, MorphErode, 2)
	defer mempool.PutBool(eroded)
	assert.Equal(t, []image.Point{{3, 3}}, setPixels(eroded, w))
}

func TestApplyMorphology_BorderDoesNotErode(t *testing.T) {
	mask, w, h := maskFrom(
		"####",
		"####",
		"####",
	)
	out := ApplyMorphology(mask, w, h, MorphErode, 3)
	defer mempool.PutBool(out)
	assert.Len(t, setPixels(out, w), w*h)
}

func TestApplyMorphology_ClosingFillsGap(t *testing.T) {
	mask, w, h := maskFrom(
		"..........",
		".###.####.",
		".###.####.",
		"..........",
	)
	out := ApplyMorphology(mask, w, h, MorphClosing, 3)
	defer mempool.PutBool(out)
	assert.True(t, out[1*w+4])
	assert.True(t, out[2*w+4])
}

func TestApplyMorphology_OpeningRemovesSpeck(t *testing.T) {
	mask, w, h := maskFrom(
		"#.........",
		"..........",
		"....###...",
		"....###...",
		"....###...",
	)
	out := ApplyMorphology(mask, w, h, MorphOpening, 3)
	defer mempool.PutBool(out)
	assert.False(t, out[0])
	assert.True(t, out[3*w+5])
}

func TestApplyMorphology_NoneCopies(t *testing.T) {
	mask, w, h := maskFrom("#.#", ".#.")
	out := ApplyMorphology(mask, w, h, MorphNone, 3)
	defer mempool.PutBool(out)
	require.Len(t, out, len(mask))
	assert.Equal(t, mask, out)

	out[0] = false
	assert.True(t, mask[0], "input must not be modified")
}

func TestConnectedComponents_EightConnected(t *testing.T) {
	mask, w, h := maskFrom(
		"#...",
		".#..",
		"..#.",
		"....",
	)
	comps := connectedComponents(mask, w, h)
	require.Len(t, comps, 1)
	assert.Equal(t, 3, comps[0].count)
	assert.Equal(t, image.Rect(0, 0, 3, 3), comps[0].bounds())
}

func TestExternalBoxes_SkipsEnclosedBlobs(t *testing.T) {
	mask, w, h := maskFrom(
		"...........",
		".#########.",
		".#.......#.",
		".#..###..#.",
		".#..###..#.",
		".#.......#.",
		".#########.",
		"...........",
		"........##.",
	)
	comps := connectedComponents(mask, w, h)
	require.Len(t, comps, 3)
	assert.True(t, comps[0].external)
	assert.False(t, comps[1].external)
	assert.True(t, comps[2].external)

	boxes := externalBoxes(mask, w, h)
	assert.Equal(t, []image.Rectangle{
		image.Rect(1, 1, 10, 7),
		image.Rect(8, 8, 10, 9),
	}, boxes)
}

func TestConnectedComponents_Empty(t *testing.T) {
	assert.Empty(t, connectedComponents(nil, 0, 0))
	mask, w, h := maskFrom("...", "...")
	assert.Empty(t, externalBoxes(mask, w, h))
}
