package locator

import (
	"image"

	"github.com/MeKo-Tech/meterread/internal/mempool"
)

// compStats accumulates per-component statistics during labeling.
type compStats struct {
	count                  int
	minX, minY, maxX, maxY int
	external               bool
}

func (c compStats) bounds() image.Rectangle {
	return image.Rect(c.minX, c.minY, c.maxX+1, c.maxY+1)
}

// outerBackground marks background pixels 4-connected to the mask border.
// Background regions it does not reach are holes inside some blob.
func outerBackground(mask []bool, w, h int) []bool {
	outer := mempool.GetBool(w * h)
	queue := make([]int32, 0, 2*(w+h))

	seed := func(idx int) {
		if !mask[idx] && !outer[idx] {
			outer[idx] = true
			queue = append(queue, int32(idx))
		}
	}
	for x := 0; x < w; x++ {
		seed(x)
		seed((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		seed(y * w)
		seed(y*w + w - 1)
	}

	for head := 0; head < len(queue); head++ {
		idx := int(queue[head])
		x, y := idx%w, idx/w
		if x > 0 {
			seed(idx - 1)
		}
		if x < w-1 {
			seed(idx + 1)
		}
		if y > 0 {
			seed(idx - w)
		}
		if y < h-1 {
			seed(idx + w)
		}
	}
	return outer
}

// connectedComponents labels 8-connected foreground blobs in raster order of
// their first pixel. A blob is external when it touches the mask border or
// the outer background; blobs sitting inside another blob's hole are not.
func connectedComponents(mask []bool, w, h int) []compStats {
	if w <= 0 || h <= 0 || len(mask) < w*h {
		return nil
	}

	outer := outerBackground(mask, w, h)
	defer mempool.PutBool(outer)
	visited := mempool.GetBool(w * h)
	defer mempool.PutBool(visited)

	var comps []compStats
	queue := make([]int32, 0, 256)
	for start := 0; start < w*h; start++ {
		if !mask[start] || visited[start] {
			continue
		}
		comp, q := performComponentBFS(mask, outer, visited, w, h, start, queue[:0])
		queue = q
		comps = append(comps, comp)
	}
	return comps
}

func performComponentBFS(mask, outer, visited []bool, w, h, start int, queue []int32) (compStats, []int32) {
	sx, sy := start%w, start/w
	comp := compStats{minX: sx, minY: sy, maxX: sx, maxY: sy}
	visited[start] = true
	queue = append(queue, int32(start))

	for head := 0; head < len(queue); head++ {
		idx := int(queue[head])
		x, y := idx%w, idx/w
		comp.count++
		comp.minX = min(comp.minX, x)
		comp.maxX = max(comp.maxX, x)
		comp.minY = min(comp.minY, y)
		comp.maxY = max(comp.maxY, y)

		if !comp.external && touchesOutside(outer, w, h, x, y) {
			comp.external = true
		}

		for dy := -1; dy <= 1; dy++ {
			ny := y + dy
			if ny < 0 || ny >= h {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				nx := x + dx
				if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
					continue
				}
				n := ny*w + nx
				if mask[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, int32(n))
				}
			}
		}
	}
	return comp, queue
}

func touchesOutside(outer []bool, w, h, x, y int) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	idx := y*w + x
	return outer[idx-1] || outer[idx+1] || outer[idx-w] || outer[idx+w]
}

// externalBoxes returns the bounding boxes of all external blobs.
func externalBoxes(mask []bool, w, h int) []image.Rectangle {
	comps := connectedComponents(mask, w, h)
	boxes := make([]image.Rectangle, 0, len(comps))
	for _, c := range comps {
		if c.external {
			boxes = append(boxes, c.bounds())
		}
	}
	return boxes
}
