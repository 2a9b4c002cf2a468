package reading

import (
	"errors"
	"fmt"
)

// Config holds preprocessing and recognition parameters.
type Config struct {
	UpscaleWidth   int                // Regions narrower than this are upscaled (default: 1000)
	CLAHEClipLimit float64            // Contrast limit per tile (default: 3.0)
	CLAHETiles     int                // Tiles per axis (default: 8)
	MinDigits      int                // Minimum digits for a candidate (default: 3)
	Whitelist      string             // Characters the engine may emit (default: "0123456789.")
	Modes          []SegmentationMode // Segmentation modes tried per variant (default: 7, 8, 13)
	Workers        int                // Concurrent engine invocations (default: 4)
}

// DefaultConfig returns the default extraction parameters.
func DefaultConfig() Config {
	return Config{
		UpscaleWidth:   1000,
		CLAHEClipLimit: 3.0,
		CLAHETiles:     8,
		MinDigits:      3,
		Whitelist:      "0123456789.",
		Modes:          []SegmentationMode{SingleLine, SingleWord, RawLine},
		Workers:        4,
	}
}

// Validate checks the configuration for unusable values.
func (c Config) Validate() error {
	if c.UpscaleWidth <= 0 {
		return fmt.Errorf("invalid upscale width: %d", c.UpscaleWidth)
	}
	if c.CLAHETiles <= 0 {
		return fmt.Errorf("invalid clahe tile count: %d", c.CLAHETiles)
	}
	if c.CLAHEClipLimit < 0 {
		return fmt.Errorf("invalid clahe clip limit: %.2f", c.CLAHEClipLimit)
	}
	if c.MinDigits < 1 {
		return fmt.Errorf("invalid min digits: %d", c.MinDigits)
	}
	if len(c.Modes) == 0 {
		return errors.New("at least one segmentation mode is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	return nil
}
