package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/engine/tesseract"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/reading"
)

// Config represents the complete configuration for the meterread application.
// It covers all commands (classify, locate, read, batch, serve, watch, mcp)
// and supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Pipeline stages
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Locator    LocatorConfig    `mapstructure:"locator" yaml:"locator" json:"locator"`
	OCR        OCRConfig        `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Tesseract  TesseractConfig  `mapstructure:"tesseract" yaml:"tesseract" json:"tesseract"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	// Folder watcher configuration
	Watch WatchConfig `mapstructure:"watch" yaml:"watch" json:"watch"`
}

// ClassifierConfig contains the hue vote thresholds.
type ClassifierConfig struct {
	Width         int     `mapstructure:"width" yaml:"width" json:"width"`
	Height        int     `mapstructure:"height" yaml:"height" json:"height"`
	MinSaturation float64 `mapstructure:"min_saturation" yaml:"min_saturation" json:"min_saturation"`
	MinValue      float64 `mapstructure:"min_value" yaml:"min_value" json:"min_value"`
	RedHueLow     float64 `mapstructure:"red_hue_low" yaml:"red_hue_low" json:"red_hue_low"`
	RedHueHigh    float64 `mapstructure:"red_hue_high" yaml:"red_hue_high" json:"red_hue_high"`
	BlueHueMin    float64 `mapstructure:"blue_hue_min" yaml:"blue_hue_min" json:"blue_hue_min"`
	BlueHueMax    float64 `mapstructure:"blue_hue_max" yaml:"blue_hue_max" json:"blue_hue_max"`
}

// LocatorConfig contains display search settings.
type LocatorConfig struct {
	RoughLeft       float64 `mapstructure:"rough_left" yaml:"rough_left" json:"rough_left"`
	RoughRight      float64 `mapstructure:"rough_right" yaml:"rough_right" json:"rough_right"`
	RoughTop        float64 `mapstructure:"rough_top" yaml:"rough_top" json:"rough_top"`
	RoughBottom     float64 `mapstructure:"rough_bottom" yaml:"rough_bottom" json:"rough_bottom"`
	DarkMin         int     `mapstructure:"dark_min" yaml:"dark_min" json:"dark_min"`
	DarkMax         int     `mapstructure:"dark_max" yaml:"dark_max" json:"dark_max"`
	CloseKernel     int     `mapstructure:"close_kernel" yaml:"close_kernel" json:"close_kernel"`
	OpenKernel      int     `mapstructure:"open_kernel" yaml:"open_kernel" json:"open_kernel"`
	MinWidth        int     `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MinHeight       int     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
	MinArea         int     `mapstructure:"min_area" yaml:"min_area" json:"min_area"`
	MinAspect       float64 `mapstructure:"min_aspect" yaml:"min_aspect" json:"min_aspect"`
	MaxAspect       float64 `mapstructure:"max_aspect" yaml:"max_aspect" json:"max_aspect"`
	PreferredAspect float64 `mapstructure:"preferred_aspect" yaml:"preferred_aspect" json:"preferred_aspect"`
	PadFraction     float64 `mapstructure:"pad_fraction" yaml:"pad_fraction" json:"pad_fraction"`
	MinPadX         int     `mapstructure:"min_pad_x" yaml:"min_pad_x" json:"min_pad_x"`
	MinPadY         int     `mapstructure:"min_pad_y" yaml:"min_pad_y" json:"min_pad_y"`
	FallbackLeft    float64 `mapstructure:"fallback_left" yaml:"fallback_left" json:"fallback_left"`
	FallbackRight   float64 `mapstructure:"fallback_right" yaml:"fallback_right" json:"fallback_right"`
	FallbackTop     float64 `mapstructure:"fallback_top" yaml:"fallback_top" json:"fallback_top"`
	FallbackBottom  float64 `mapstructure:"fallback_bottom" yaml:"fallback_bottom" json:"fallback_bottom"`
	SaveDisplay     bool    `mapstructure:"save_display" yaml:"save_display" json:"save_display"` // Persist display crops as <stem>_display.jpg
	DisplayDir      string  `mapstructure:"display_dir" yaml:"display_dir" json:"display_dir"`    // Directory for persisted crops
}

// OCRConfig contains preprocessing and candidate selection settings.
type OCRConfig struct {
	UpscaleWidth   int     `mapstructure:"upscale_width" yaml:"upscale_width" json:"upscale_width"`
	CLAHEClipLimit float64 `mapstructure:"clahe_clip_limit" yaml:"clahe_clip_limit" json:"clahe_clip_limit"`
	CLAHETiles     int     `mapstructure:"clahe_tiles" yaml:"clahe_tiles" json:"clahe_tiles"`
	MinDigits      int     `mapstructure:"min_digits" yaml:"min_digits" json:"min_digits"`
	Whitelist      string  `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
	Modes          []int   `mapstructure:"modes" yaml:"modes" json:"modes"`
	Workers        int     `mapstructure:"workers" yaml:"workers" json:"workers"`
	Diagnostics    bool    `mapstructure:"diagnostics" yaml:"diagnostics" json:"diagnostics"`
}

// TesseractConfig contains OCR engine settings.
type TesseractConfig struct {
	Language       string `mapstructure:"language" yaml:"language" json:"language"`
	TessdataPrefix string `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Per-client limits on the meter endpoints
	RateLimitEnabled  bool  `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"` // bytes
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	ResultsDir      string   `mapstructure:"results_dir" yaml:"results_dir" json:"results_dir"`
	ShowProgress    bool     `mapstructure:"show_progress" yaml:"show_progress" json:"show_progress"`
	ShowStats       bool     `mapstructure:"show_stats" yaml:"show_stats" json:"show_stats"`
}

// WatchConfig contains folder watcher settings.
type WatchConfig struct {
	DebounceMs int  `mapstructure:"debounce_ms" yaml:"debounce_ms" json:"debounce_ms"`
	Recursive  bool `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	bc := batch.DefaultConfig()
	return Config{
		LogLevel:   "info",
		Verbose:    false,
		Classifier: defaultClassifierConfig(),
		Locator:    defaultLocatorConfig(),
		OCR:        defaultOCRConfig(),
		Tesseract: TesseractConfig{
			Language: tesseract.DefaultConfig().Language,
		},
		Output: OutputConfig{
			Format: batch.FormatText,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,

			RequestsPerMinute: 30,
			RequestsPerHour:   600,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     500 * 1024 * 1024,
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: bc.ContinueOnError,
			Include:         bc.IncludePatterns,
			Exclude:         bc.ExcludePatterns,
			ResultsDir:      bc.ResultsDir,
			ShowProgress:    bc.ShowProgress,
			ShowStats:       bc.ShowStats,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
	}
}

// defaultClassifierConfig returns default classifier configuration.
func defaultClassifierConfig() ClassifierConfig {
	cfg := classifier.DefaultConfig()
	return ClassifierConfig{
		Width:         cfg.Width,
		Height:        cfg.Height,
		MinSaturation: cfg.MinSaturation,
		MinValue:      cfg.MinValue,
		RedHueLow:     cfg.RedHueLow,
		RedHueHigh:    cfg.RedHueHigh,
		BlueHueMin:    cfg.BlueHueMin,
		BlueHueMax:    cfg.BlueHueMax,
	}
}

// defaultLocatorConfig returns default locator configuration.
func defaultLocatorConfig() LocatorConfig {
	cfg := locator.DefaultConfig()
	return LocatorConfig{
		RoughLeft:       cfg.RoughLeft,
		RoughRight:      cfg.RoughRight,
		RoughTop:        cfg.RoughTop,
		RoughBottom:     cfg.RoughBottom,
		DarkMin:         int(cfg.DarkMin[0]),
		DarkMax:         int(cfg.DarkMax[0]),
		CloseKernel:     cfg.CloseKernel,
		OpenKernel:      cfg.OpenKernel,
		MinWidth:        cfg.MinWidth,
		MinHeight:       cfg.MinHeight,
		MinArea:         cfg.MinArea,
		MinAspect:       cfg.MinAspect,
		MaxAspect:       cfg.MaxAspect,
		PreferredAspect: cfg.PreferredAspect,
		PadFraction:     cfg.PadFraction,
		MinPadX:         cfg.MinPadX,
		MinPadY:         cfg.MinPadY,
		FallbackLeft:    cfg.FallbackLeft,
		FallbackRight:   cfg.FallbackRight,
		FallbackTop:     cfg.FallbackTop,
		FallbackBottom:  cfg.FallbackBottom,
		DisplayDir:      "displays",
	}
}

// defaultOCRConfig returns default extraction configuration.
func defaultOCRConfig() OCRConfig {
	cfg := reading.DefaultConfig()
	modes := make([]int, len(cfg.Modes))
	for i, m := range cfg.Modes {
		modes[i] = int(m)
	}
	return OCRConfig{
		UpscaleWidth:   cfg.UpscaleWidth,
		CLAHEClipLimit: cfg.CLAHEClipLimit,
		CLAHETiles:     cfg.CLAHETiles,
		MinDigits:      cfg.MinDigits,
		Whitelist:      cfg.Whitelist,
		Modes:          modes,
		Workers:        cfg.Workers,
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	// Validate output format
	if c.Output.Format != "" && !slices.Contains(batch.Formats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(batch.Formats, ", "))
	}

	// Validate color thresholds
	for name, v := range map[string]float64{
		"classifier.min_saturation": c.Classifier.MinSaturation,
		"classifier.min_value":      c.Classifier.MinValue,
		"classifier.red_hue_low":    c.Classifier.RedHueLow,
		"classifier.red_hue_high":   c.Classifier.RedHueHigh,
		"classifier.blue_hue_min":   c.Classifier.BlueHueMin,
		"classifier.blue_hue_max":   c.Classifier.BlueHueMax,
		"locator.pad_fraction":      c.Locator.PadFraction,
	} {
		if err := validateFraction(v, name); err != nil {
			return err
		}
	}
	if err := c.ToClassifierConfig().Validate(); err != nil {
		return fmt.Errorf("invalid classifier config: %w", err)
	}

	// Validate dark band
	if err := validateChannel(c.Locator.DarkMin, "locator.dark_min"); err != nil {
		return err
	}
	if err := validateChannel(c.Locator.DarkMax, "locator.dark_max"); err != nil {
		return err
	}
	if err := c.ToLocatorConfig().Validate(); err != nil {
		return fmt.Errorf("invalid locator config: %w", err)
	}

	// Validate segmentation modes
	for _, m := range c.OCR.Modes {
		if m < 0 || m > 13 {
			return fmt.Errorf("invalid page segmentation mode: %d (must be between 0 and 13)", m)
		}
	}
	if err := c.ToReadingConfig().Validate(); err != nil {
		return fmt.Errorf("invalid ocr config: %w", err)
	}

	// Validate positive integers
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.RequestsPerHour < 0 ||
		c.Server.MaxRequestsPerDay < 0 || c.Server.MaxDataPerDay < 0 {
		return errors.New("rate limits must not be negative")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("invalid watch debounce: %d (must not be negative)", c.Watch.DebounceMs)
	}

	return nil
}

// ToClassifierConfig converts to classifier.Config.
func (c *Config) ToClassifierConfig() classifier.Config {
	return classifier.Config{
		Width:         c.Classifier.Width,
		Height:        c.Classifier.Height,
		MinSaturation: c.Classifier.MinSaturation,
		MinValue:      c.Classifier.MinValue,
		RedHueLow:     c.Classifier.RedHueLow,
		RedHueHigh:    c.Classifier.RedHueHigh,
		BlueHueMin:    c.Classifier.BlueHueMin,
		BlueHueMax:    c.Classifier.BlueHueMax,
	}
}

// ToLocatorConfig converts to locator.Config. The dark band applies the same
// bound to every channel.
func (c *Config) ToLocatorConfig() locator.Config {
	lo, hi := uint8(clampChannel(c.Locator.DarkMin)), uint8(clampChannel(c.Locator.DarkMax))
	return locator.Config{
		RoughLeft:       c.Locator.RoughLeft,
		RoughRight:      c.Locator.RoughRight,
		RoughTop:        c.Locator.RoughTop,
		RoughBottom:     c.Locator.RoughBottom,
		DarkMin:         [3]uint8{lo, lo, lo},
		DarkMax:         [3]uint8{hi, hi, hi},
		CloseKernel:     c.Locator.CloseKernel,
		OpenKernel:      c.Locator.OpenKernel,
		MinWidth:        c.Locator.MinWidth,
		MinHeight:       c.Locator.MinHeight,
		MinArea:         c.Locator.MinArea,
		MinAspect:       c.Locator.MinAspect,
		MaxAspect:       c.Locator.MaxAspect,
		PreferredAspect: c.Locator.PreferredAspect,
		PadFraction:     c.Locator.PadFraction,
		MinPadX:         c.Locator.MinPadX,
		MinPadY:         c.Locator.MinPadY,
		FallbackLeft:    c.Locator.FallbackLeft,
		FallbackRight:   c.Locator.FallbackRight,
		FallbackTop:     c.Locator.FallbackTop,
		FallbackBottom:  c.Locator.FallbackBottom,
	}
}

// ToReadingConfig converts to reading.Config.
func (c *Config) ToReadingConfig() reading.Config {
	modes := make([]reading.SegmentationMode, len(c.OCR.Modes))
	for i, m := range c.OCR.Modes {
		modes[i] = reading.SegmentationMode(m)
	}
	return reading.Config{
		UpscaleWidth:   c.OCR.UpscaleWidth,
		CLAHEClipLimit: c.OCR.CLAHEClipLimit,
		CLAHETiles:     c.OCR.CLAHETiles,
		MinDigits:      c.OCR.MinDigits,
		Whitelist:      c.OCR.Whitelist,
		Modes:          modes,
		Workers:        c.OCR.Workers,
	}
}

// ToTesseractConfig converts to tesseract.Config.
func (c *Config) ToTesseractConfig() tesseract.Config {
	cfg := tesseract.DefaultConfig()
	if c.Tesseract.Language != "" {
		cfg.Language = c.Tesseract.Language
	}
	cfg.TessdataPrefix = c.Tesseract.TessdataPrefix
	return cfg
}

// ToBatchConfig converts to batch.Config.
func (c *Config) ToBatchConfig() *batch.Config {
	cfg := batch.DefaultConfig()
	cfg.Workers = c.Batch.Workers
	cfg.ContinueOnError = c.Batch.ContinueOnError
	cfg.Recursive = c.Batch.Recursive
	if len(c.Batch.Include) > 0 {
		cfg.IncludePatterns = slices.Clone(c.Batch.Include)
	}
	cfg.ExcludePatterns = slices.Clone(c.Batch.Exclude)
	if c.Output.Format != "" {
		cfg.Format = c.Output.Format
	}
	cfg.OutputFile = c.Output.File
	if c.Batch.ResultsDir != "" {
		cfg.ResultsDir = c.Batch.ResultsDir
	}
	cfg.ShowProgress = c.Batch.ShowProgress
	cfg.ShowStats = c.Batch.ShowStats
	return cfg
}

// Helper functions

// validateFraction validates that a value is between 0.0 and 1.0.
func validateFraction(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// validateChannel validates an 8-bit channel value.
func validateChannel(value int, name string) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("invalid %s: %d (must be between 0 and 255)", name, value)
	}
	return nil
}

func clampChannel(v int) int {
	return min(max(v, 0), 255)
}
