package utils

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ErrNilImage is returned when a nil image reaches an operation.
var ErrNilImage = errors.New("input image is nil")

// CheckImage returns a typed error for nil or zero-area images.
func CheckImage(op string, img image.Image) error {
	if img == nil {
		return &ImageProcessingError{Operation: op, Err: ErrNilImage}
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return &ImageProcessingError{Operation: op, Err: fmt.Errorf("image has zero area: %v", b)}
	}
	return nil
}

// FractionRect converts fractional edges of a w×h area to a pixel rectangle.
// Edges are truncated toward zero.
func FractionRect(w, h int, left, right, top, bottom float64) image.Rectangle {
	return image.Rect(
		int(float64(w)*left),
		int(float64(h)*top),
		int(float64(w)*right),
		int(float64(h)*bottom),
	)
}

// CropImageRect crops img to rect, given relative to the image's own origin.
// The returned image starts at (0,0).
func CropImageRect(img image.Image, rect image.Rectangle) *image.NRGBA {
	b := img.Bounds()
	return imaging.Crop(img, rect.Add(b.Min))
}
