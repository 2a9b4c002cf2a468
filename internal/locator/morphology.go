package locator

import (
	"github.com/MeKo-Tech/meterread/internal/mempool"
)

// MorphologicalOp represents a binary morphological operation.
type MorphologicalOp int

const (
	MorphNone MorphologicalOp = iota
	MorphDilate
	MorphErode
	MorphOpening // erosion followed by dilation
	MorphClosing // dilation followed by erosion
)

// ApplyMorphology runs op with a k×k rectangular structuring element over a
// row-major w×h mask. The anchor sits at (k/2, k/2), so an even kernel covers
// offsets -k/2 … k/2-1. Pixels outside the mask never contribute.
//
// The returned mask comes from mempool and must be released with
// mempool.PutBool. The input is left untouched.
func ApplyMorphology(mask []bool, w, h int, op MorphologicalOp, k int) []bool {
	if k <= 1 || op == MorphNone {
		out := mempool.GetBool(w * h)
		copy(out, mask)
		return out
	}

	switch op {
	case MorphDilate:
		return dilate(mask, w, h, k)
	case MorphErode:
		return erode(mask, w, h, k)
	case MorphOpening:
		tmp := erode(mask, w, h, k)
		defer mempool.PutBool(tmp)
		return dilate(tmp, w, h, k)
	case MorphClosing:
		tmp := dilate(mask, w, h, k)
		defer mempool.PutBool(tmp)
		return erode(tmp, w, h, k)
	default:
		out := mempool.GetBool(w * h)
		copy(out, mask)
		return out
	}
}

// A rectangular element is separable, so each operation is a horizontal pass
// followed by a vertical pass. Both passes count set pixels in the clipped
// window with a running prefix sum.

func dilate(mask []bool, w, h, k int) []bool {
	tmp := mempool.GetBool(w * h)
	defer mempool.PutBool(tmp)
	out := mempool.GetBool(w * h)
	windowPass(mask, tmp, w, h, 1, w, k, anyHit)
	windowPass(tmp, out, h, w, w, 1, k, anyHit)
	return out
}

func erode(mask []bool, w, h, k int) []bool {
	tmp := mempool.GetBool(w * h)
	defer mempool.PutBool(tmp)
	out := mempool.GetBool(w * h)
	windowPass(mask, tmp, w, h, 1, w, k, allHit)
	windowPass(tmp, out, h, w, w, 1, k, allHit)
	return out
}

func anyHit(count, _ int) bool { return count > 0 }
func allHit(count, window int) bool { return count == window }

// windowPass slides a 1-D window of size k along lines of length n. There are
// lines such lines; step is the index distance between neighbours on a line
// and lineStep the distance between the first pixels of consecutive lines.
func windowPass(src, dst []bool, n, lines, step, lineStep, k int, hit func(count, window int) bool) {
	anchor := k / 2
	prefix := mempool.GetInt32(n + 1)
	defer mempool.PutInt32(prefix)

	for l := 0; l < lines; l++ {
		base := l * lineStep
		prefix[0] = 0
		for i := 0; i < n; i++ {
			v := prefix[i]
			if src[base+i*step] {
				v++
			}
			prefix[i+1] = v
		}
		for i := 0; i < n; i++ {
			lo := max(0, i-anchor)
			hi := min(n, i-anchor+k)
			dst[base+i*step] = hit(int(prefix[hi]-prefix[lo]), hi-lo)
		}
	}
}
