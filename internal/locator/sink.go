package locator

import (
	"image"
	"path/filepath"

	"github.com/MeKo-Tech/meterread/internal/utils"
)

// Sink persists located display crops.
type Sink interface {
	Save(name string, img image.Image) (string, error)
}

// DisplaySuffix is appended to the source stem of saved crops.
const DisplaySuffix = "_display"

// DirSink writes crops as JPEG files into Dir.
type DirSink struct {
	Dir string
}

// NewDirSink creates a sink writing into dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

// Save writes img to <Dir>/<stem>_display.jpg and returns the path.
func (s *DirSink) Save(name string, img image.Image) (string, error) {
	stem := utils.Stem(name)
	if stem == "" || stem == "." {
		stem = "region"
	}
	path := filepath.Join(s.Dir, stem+DisplaySuffix+".jpg")
	if err := utils.SaveImage(path, img); err != nil {
		return "", err
	}
	return path, nil
}
