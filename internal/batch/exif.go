package batch

import (
	"io"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// NoEXIF is reported for photos without a capture timestamp.
const NoEXIF = "No EXIF data"

var takenAtFields = []exif.FieldName{exif.DateTime, exif.DateTimeOriginal, exif.DateTimeDigitized}

// TakenAt returns the EXIF timestamp of the photo at path. The IFD0 DateTime
// wins over DateTimeOriginal, which wins over DateTimeDigitized.
func TakenAt(path string) (string, bool) {
	f, err := os.Open(path) //nolint:gosec // G304: reading a discovered photo is expected
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()
	return TakenAtReader(f)
}

// TakenAtReader is TakenAt for an encoded photo held in r.
func TakenAtReader(r io.Reader) (string, bool) {
	x, err := exif.Decode(r)
	if err != nil {
		return "", false
	}
	for _, name := range takenAtFields {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil {
			if s = strings.TrimSpace(strings.TrimRight(s, "\x00")); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// takenAtOrDefault renders the capture time for reports.
func takenAtOrDefault(path string) string {
	if s, ok := TakenAt(path); ok {
		return s
	}
	return NoEXIF
}
