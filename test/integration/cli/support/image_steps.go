package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// meterPhotoConfig maps a scenario word to a synthetic photo layout.
func meterPhotoConfig(kind string) (testutil.MeterPhotoConfig, error) {
	cfg := testutil.DefaultMeterPhotoConfig()
	switch strings.ToLower(kind) {
	case "hot":
		cfg.Body = testutil.HotBody
	case "cold":
		cfg.Body = testutil.ColdBody
	case "displayless":
		cfg.Display = image.Rectangle{}
	default:
		return cfg, fmt.Errorf("unknown meter photo kind %q", kind)
	}
	return cfg, nil
}

// writePhoto renders a photo at name inside the scenario directory and
// registers it for {photo:<name>} substitution.
func (testCtx *TestContext) writePhoto(name string, cfg testutil.MeterPhotoConfig) error {
	path := testCtx.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := imaging.Save(testutil.GenerateMeterPhoto(cfg), path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to write meter photo %s: %w", name, err)
	}
	testCtx.Photos[name] = path
	return nil
}

// aMeterPhoto creates a hot, cold or displayless meter photo.
func (testCtx *TestContext) aMeterPhoto(kind, name string) error {
	cfg, err := meterPhotoConfig(kind)
	if err != nil {
		return err
	}
	return testCtx.writePhoto(name, cfg)
}

// aDirectoryWithMeterPhotos fills dir with n photos alternating hot and cold.
func (testCtx *TestContext) aDirectoryWithMeterPhotos(dir string, n int) error {
	for i := range n {
		kind := "hot"
		if i%2 == 1 {
			kind = "cold"
		}
		if err := testCtx.aMeterPhoto(kind, filepath.Join(dir, fmt.Sprintf("meter_%02d.jpg", i))); err != nil {
			return err
		}
	}
	return nil
}

// anEmptyDirectory creates dir with no photos.
func (testCtx *TestContext) anEmptyDirectory(dir string) error {
	return os.MkdirAll(testCtx.Path(dir), 0o755)
}

// RegisterImageSteps registers meter photo fixtures.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a (hot|cold|displayless) meter photo "([^"]*)"$`, testCtx.aMeterPhoto)
	sc.Step(`^a directory "([^"]*)" with (\d+) meter photos$`, testCtx.aDirectoryWithMeterPhotos)
	sc.Step(`^an empty directory "([^"]*)"$`, testCtx.anEmptyDirectory)
}
