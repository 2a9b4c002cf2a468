package reading

import (
	"image"
	"math"

	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Prepared is one rendition handed to the engine.
type Prepared struct {
	Variant Variant
	Image   image.Image
}

// Preprocess converts region to grayscale, upscales it and returns the five
// renditions in recognition order.
func Preprocess(region image.Image, cfg Config) ([]Prepared, error) {
	if err := utils.CheckImage("preprocess", region); err != nil {
		return nil, err
	}

	gray := UpscaleToWidth(ToGray(region), cfg.UpscaleWidth)
	otsu := Binarize(gray, OtsuThreshold(gray))

	return []Prepared{
		{Variant: VariantOriginal, Image: gray},
		{Variant: VariantCLAHE, Image: EqualizeCLAHE(gray, cfg.CLAHEClipLimit, cfg.CLAHETiles)},
		{Variant: VariantOtsu, Image: otsu},
		{Variant: VariantInverted, Image: Invert(gray)},
		{Variant: VariantSharpened, Image: Sharpen(gray)},
	}, nil
}

// ToGray converts img to 8-bit luma using BT.601 weights. The result starts
// at (0,0).
func ToGray(img image.Image) *image.Gray {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			r, g, b := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			out[x] = uint8((299*r + 587*g + 114*b + 500) / 1000)
		}
	}
	return dst
}

// UpscaleToWidth enlarges g with cubic interpolation so that it is width
// pixels wide. Images that are already wide enough are returned unchanged.
func UpscaleToWidth(g *image.Gray, width int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w <= 0 || w >= width {
		return g
	}
	scale := float64(width) / float64(w)
	newW := int(math.Round(float64(w) * scale))
	newH := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewGray(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Rect, g, g.Rect, draw.Src, nil)
	return dst
}

// EqualizeCLAHE applies contrast-limited adaptive histogram equalization
// with tiles×tiles regions. The image is reflect-padded to a tile multiple
// for the histograms; per-pixel output interpolates bilinearly between the
// four nearest tile mappings.
func EqualizeCLAHE(g *image.Gray, clipLimit float64, tiles int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w == 0 || h == 0 || tiles <= 0 {
		return g
	}

	padW, padH := w, h
	if r := w % tiles; r != 0 {
		padW += tiles - r
	}
	if r := h % tiles; r != 0 {
		padH += tiles - r
	}
	tileW, tileH := padW/tiles, padH/tiles
	tileArea := tileW * tileH

	limit := 0
	if clipLimit > 0 {
		limit = max(int(clipLimit*float64(tileArea)/256), 1)
	}

	at := func(x, y int) uint8 {
		return g.Pix[reflect101(y, h)*g.Stride+reflect101(x, w)]
	}

	luts := make([][256]uint8, tiles*tiles)
	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			var hist [256]int
			for y := ty * tileH; y < (ty+1)*tileH; y++ {
				for x := tx * tileW; x < (tx+1)*tileW; x++ {
					hist[at(x, y)]++
				}
			}
			if limit > 0 {
				clipHistogram(&hist, limit)
			}
			luts[ty*tiles+tx] = histogramLUT(&hist, tileArea)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	invTW, invTH := 1.0/float64(tileW), 1.0/float64(tileH)

	type span struct {
		lo, hi int
		frac   float64
	}
	xs := make([]span, w)
	for x := range xs {
		txf := float64(x)*invTW - 0.5
		t1 := int(math.Floor(txf))
		xs[x] = span{lo: max(t1, 0), hi: min(t1+1, tiles-1), frac: txf - float64(t1)}
	}

	for y := 0; y < h; y++ {
		tyf := float64(y)*invTH - 0.5
		t1 := int(math.Floor(tyf))
		ya := tyf - float64(t1)
		ty1, ty2 := max(t1, 0), min(t1+1, tiles-1)
		for x := 0; x < w; x++ {
			v := g.Pix[y*g.Stride+x]
			s := xs[x]
			top := float64(luts[ty1*tiles+s.lo][v])*(1-s.frac) + float64(luts[ty1*tiles+s.hi][v])*s.frac
			bottom := float64(luts[ty2*tiles+s.lo][v])*(1-s.frac) + float64(luts[ty2*tiles+s.hi][v])*s.frac
			dst.Pix[y*dst.Stride+x] = clampUint8(top*(1-ya) + bottom*ya)
		}
	}
	return dst
}

// clipHistogram caps every bin at limit and spreads the excess evenly,
// handing the remainder out at a fixed stride from bin 0.
func clipHistogram(hist *[256]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / 256
	residual := clipped - batch*256
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(256/residual, 1)
		for i := 0; i < 256 && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

func histogramLUT(hist *[256]int, area int) [256]uint8 {
	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = clampUint8(float64(sum) * scale)
	}
	return lut
}

// reflect101 mirrors i into [0, n) without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// OtsuThreshold picks the global threshold maximizing between-class
// variance. The first of equal maxima wins.
func OtsuThreshold(g *image.Gray) uint8 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	n := w * h
	if n == 0 {
		return 0
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		for _, v := range g.Pix[y*g.Stride : y*g.Stride+w] {
			hist[v]++
		}
	}

	const eps = 1.1920929e-07 // float32 machine epsilon
	scale := 1.0 / float64(n)
	mu := 0.0
	for i, c := range hist {
		mu += float64(i) * float64(c)
	}
	mu *= scale

	var mu1, q1, maxSigma float64
	best := 0
	for i, c := range hist {
		p := float64(c) * scale
		mu1 *= q1
		q1 += p
		q2 := 1 - q1
		if math.Min(q1, q2) < eps || math.Max(q1, q2) > 1-eps {
			continue
		}
		mu1 = (mu1 + float64(i)*p) / q1
		mu2 := (mu - q1*mu1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			best = i
		}
	}
	return uint8(best)
}

// Binarize maps pixels above t to 255 and the rest to 0.
func Binarize(g *image.Gray, t uint8) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range src {
			if v > t {
				out[x] = 255
			}
		}
	}
	return dst
}

// Invert returns the photographic negative of img.
func Invert(img image.Image) image.Image {
	return imaging.Invert(img)
}

var sharpenKernel = [9]float64{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// Sharpen applies the 3×3 high-boost kernel.
func Sharpen(img image.Image) image.Image {
	return imaging.Convolve3x3(img, sharpenKernel, nil)
}
