package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "meterread"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "METERREAD"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so that flags
// bound by the root command take part in resolution.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a private viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the final validation.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from configFile, or from the search
// paths when configFile is empty, and validates it.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if err := l.read(configFile); err != nil {
		return nil, err
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func (l *Loader) read(configFile string) error {
	l.setupEnvironmentVariables()
	l.setDefaults()

	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env vars still apply.
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	// METERREAD_SERVER_PORT maps to server.port
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)

	// Classifier defaults
	l.v.SetDefault("classifier.width", defaults.Classifier.Width)
	l.v.SetDefault("classifier.height", defaults.Classifier.Height)
	l.v.SetDefault("classifier.min_saturation", defaults.Classifier.MinSaturation)
	l.v.SetDefault("classifier.min_value", defaults.Classifier.MinValue)
	l.v.SetDefault("classifier.red_hue_low", defaults.Classifier.RedHueLow)
	l.v.SetDefault("classifier.red_hue_high", defaults.Classifier.RedHueHigh)
	l.v.SetDefault("classifier.blue_hue_min", defaults.Classifier.BlueHueMin)
	l.v.SetDefault("classifier.blue_hue_max", defaults.Classifier.BlueHueMax)

	// Locator defaults
	l.v.SetDefault("locator.rough_left", defaults.Locator.RoughLeft)
	l.v.SetDefault("locator.rough_right", defaults.Locator.RoughRight)
	l.v.SetDefault("locator.rough_top", defaults.Locator.RoughTop)
	l.v.SetDefault("locator.rough_bottom", defaults.Locator.RoughBottom)
	l.v.SetDefault("locator.dark_min", defaults.Locator.DarkMin)
	l.v.SetDefault("locator.dark_max", defaults.Locator.DarkMax)
	l.v.SetDefault("locator.close_kernel", defaults.Locator.CloseKernel)
	l.v.SetDefault("locator.open_kernel", defaults.Locator.OpenKernel)
	l.v.SetDefault("locator.min_width", defaults.Locator.MinWidth)
	l.v.SetDefault("locator.min_height", defaults.Locator.MinHeight)
	l.v.SetDefault("locator.min_area", defaults.Locator.MinArea)
	l.v.SetDefault("locator.min_aspect", defaults.Locator.MinAspect)
	l.v.SetDefault("locator.max_aspect", defaults.Locator.MaxAspect)
	l.v.SetDefault("locator.preferred_aspect", defaults.Locator.PreferredAspect)
	l.v.SetDefault("locator.pad_fraction", defaults.Locator.PadFraction)
	l.v.SetDefault("locator.min_pad_x", defaults.Locator.MinPadX)
	l.v.SetDefault("locator.min_pad_y", defaults.Locator.MinPadY)
	l.v.SetDefault("locator.fallback_left", defaults.Locator.FallbackLeft)
	l.v.SetDefault("locator.fallback_right", defaults.Locator.FallbackRight)
	l.v.SetDefault("locator.fallback_top", defaults.Locator.FallbackTop)
	l.v.SetDefault("locator.fallback_bottom", defaults.Locator.FallbackBottom)
	l.v.SetDefault("locator.save_display", defaults.Locator.SaveDisplay)
	l.v.SetDefault("locator.display_dir", defaults.Locator.DisplayDir)

	// OCR defaults
	l.v.SetDefault("ocr.upscale_width", defaults.OCR.UpscaleWidth)
	l.v.SetDefault("ocr.clahe_clip_limit", defaults.OCR.CLAHEClipLimit)
	l.v.SetDefault("ocr.clahe_tiles", defaults.OCR.CLAHETiles)
	l.v.SetDefault("ocr.min_digits", defaults.OCR.MinDigits)
	l.v.SetDefault("ocr.whitelist", defaults.OCR.Whitelist)
	l.v.SetDefault("ocr.modes", defaults.OCR.Modes)
	l.v.SetDefault("ocr.workers", defaults.OCR.Workers)
	l.v.SetDefault("ocr.diagnostics", defaults.OCR.Diagnostics)

	// Tesseract defaults
	l.v.SetDefault("tesseract.language", defaults.Tesseract.Language)
	l.v.SetDefault("tesseract.tessdata_prefix", defaults.Tesseract.TessdataPrefix)

	// Output defaults
	l.v.SetDefault("output.format", defaults.Output.Format)
	l.v.SetDefault("output.file", defaults.Output.File)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", defaults.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.rate_limit_enabled", defaults.Server.RateLimitEnabled)
	l.v.SetDefault("server.requests_per_minute", defaults.Server.RequestsPerMinute)
	l.v.SetDefault("server.requests_per_hour", defaults.Server.RequestsPerHour)
	l.v.SetDefault("server.max_requests_per_day", defaults.Server.MaxRequestsPerDay)
	l.v.SetDefault("server.max_data_per_day", defaults.Server.MaxDataPerDay)

	// Batch defaults
	l.v.SetDefault("batch.workers", defaults.Batch.Workers)
	l.v.SetDefault("batch.continue_on_error", defaults.Batch.ContinueOnError)
	l.v.SetDefault("batch.recursive", defaults.Batch.Recursive)
	l.v.SetDefault("batch.include", defaults.Batch.Include)
	l.v.SetDefault("batch.exclude", defaults.Batch.Exclude)
	l.v.SetDefault("batch.results_dir", defaults.Batch.ResultsDir)
	l.v.SetDefault("batch.show_progress", defaults.Batch.ShowProgress)
	l.v.SetDefault("batch.show_stats", defaults.Batch.ShowStats)

	// Watch defaults
	l.v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	l.v.SetDefault("watch.recursive", defaults.Watch.Recursive)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]any {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes a configuration file holding every
// default to filename (meterread.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWithViper(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
