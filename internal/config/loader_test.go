package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return NewLoaderWithViper(viper.New())
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meterread.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// TestNewLoader tests loader creation.
func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil || loader.v == nil {
		t.Fatal("NewLoader() returned no viper instance")
	}
	if loader.GetViper() != viper.GetViper() {
		t.Error("NewLoader() should use the global viper instance")
	}
}

// TestLoadWithNoConfigFile tests loading with no config file present.
func TestLoadWithNoConfigFile(t *testing.T) {
	cfg, err := newTestLoader(t).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != infoLevel {
		t.Errorf("Expected default log level '%s', got %s", infoLevel, cfg.LogLevel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Locator.CloseKernel != 10 {
		t.Errorf("Expected default close kernel 10, got %d", cfg.Locator.CloseKernel)
	}
	if len(cfg.Batch.Include) != 4 {
		t.Errorf("Expected 4 default include patterns, got %v", cfg.Batch.Include)
	}
}

// TestLoadFromSearchPath tests discovery of meterread.yaml in the working directory.
func TestLoadFromSearchPath(t *testing.T) {
	loader := newTestLoader(t)
	if err := os.WriteFile("meterread.yaml", []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn', got %s", cfg.LogLevel)
	}
	if !strings.HasSuffix(loader.GetConfigFileUsed(), "meterread.yaml") {
		t.Errorf("Expected meterread.yaml to be used, got %s", loader.GetConfigFileUsed())
	}
}

// TestLoadWithValidYAMLFile tests loading from a valid YAML file.
func TestLoadWithValidYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
verbose: true
server:
  host: 0.0.0.0
  port: 9090
locator:
  dark_max: 90
  save_display: true
ocr:
  modes: [7, 13]
tesseract:
  language: deu
batch:
  exclude: ["*.tmp"]
`)

	cfg, err := newTestLoader(t).LoadWithFile(path)
	if err != nil {
		t.Fatalf("LoadWithFile() unexpected error: %v", err)
	}
	if cfg.LogLevel != debugLevel || !cfg.Verbose {
		t.Errorf("Expected debug and verbose, got %s and %v", cfg.LogLevel, cfg.Verbose)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9090 {
		t.Errorf("Expected 0.0.0.0:9090, got %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Locator.DarkMax != 90 || !cfg.Locator.SaveDisplay {
		t.Errorf("Unexpected locator config: %+v", cfg.Locator)
	}
	if cfg.Locator.DarkMin != 20 {
		t.Errorf("Expected dark_min default 20, got %d", cfg.Locator.DarkMin)
	}
	if len(cfg.OCR.Modes) != 2 || cfg.OCR.Modes[1] != 13 {
		t.Errorf("Expected modes [7 13], got %v", cfg.OCR.Modes)
	}
	if cfg.Tesseract.Language != "deu" {
		t.Errorf("Expected language 'deu', got %s", cfg.Tesseract.Language)
	}
	if len(cfg.Batch.Exclude) != 1 || cfg.Batch.Exclude[0] != "*.tmp" {
		t.Errorf("Expected exclude [*.tmp], got %v", cfg.Batch.Exclude)
	}
}

// TestLoadWithInvalidYAMLFile tests loading from an invalid YAML file.
func TestLoadWithInvalidYAMLFile(t *testing.T) {
	path := writeConfigFile(t, "log_level: [unclosed\n")
	if _, err := newTestLoader(t).LoadWithFile(path); err == nil {
		t.Error("LoadWithFile() expected error for invalid YAML")
	}
}

// TestLoadWithNonExistentFile tests loading from a missing file.
func TestLoadWithNonExistentFile(t *testing.T) {
	_, err := newTestLoader(t).LoadWithFile("/nonexistent/meterread.yaml")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("Expected 'does not exist' error, got %v", err)
	}
}

// TestLoadWithValidationFailure tests that invalid values are rejected.
func TestLoadWithValidationFailure(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: -1\n")

	_, err := newTestLoader(t).LoadWithFile(path)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("Expected validation error, got %v", err)
	}

	cfg, err := newTestLoader(t).LoadWithFileWithoutValidation(path)
	if err != nil {
		t.Fatalf("LoadWithFileWithoutValidation() unexpected error: %v", err)
	}
	if cfg.Server.Port != -1 {
		t.Errorf("Expected port -1, got %d", cfg.Server.Port)
	}
}

// TestLoadWithoutValidation tests loading from search paths without validation.
func TestLoadWithoutValidation(t *testing.T) {
	loader := newTestLoader(t)
	if err := os.WriteFile("meterread.yaml", []byte("log_level: loud\n"), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	cfg, err := loader.LoadWithoutValidation()
	if err != nil {
		t.Fatalf("LoadWithoutValidation() unexpected error: %v", err)
	}
	if cfg.LogLevel != "loud" {
		t.Errorf("Expected log level 'loud', got %s", cfg.LogLevel)
	}
}

// TestEnvironmentVariableOverride tests environment variable override.
func TestEnvironmentVariableOverride(t *testing.T) {
	t.Setenv("METERREAD_LOG_LEVEL", "debug")
	t.Setenv("METERREAD_SERVER_PORT", "9999")
	t.Setenv("METERREAD_VERBOSE", "true")
	t.Setenv("METERREAD_LOCATOR_CLOSE_KERNEL", "12")
	t.Setenv("METERREAD_TESSERACT_TESSDATA_PREFIX", "/opt/tessdata")

	cfg, err := newTestLoader(t).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.LogLevel != debugLevel {
		t.Errorf("Expected log level 'debug' from env, got %s", cfg.LogLevel)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from env, got %d", cfg.Server.Port)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose true from env")
	}
	if cfg.Locator.CloseKernel != 12 {
		t.Errorf("Expected close kernel 12 from env, got %d", cfg.Locator.CloseKernel)
	}
	if cfg.Tesseract.TessdataPrefix != "/opt/tessdata" {
		t.Errorf("Expected tessdata prefix from env, got %s", cfg.Tesseract.TessdataPrefix)
	}
}

// TestGetSetConfigValues tests Get, GetString and Set.
func TestGetSetConfigValues(t *testing.T) {
	loader := NewLoaderWithViper(viper.New())
	loader.Set("output.format", "json")
	if loader.GetString("output.format") != "json" {
		t.Errorf("Expected 'json', got %s", loader.GetString("output.format"))
	}
	if loader.Get("output.format") != "json" {
		t.Errorf("Expected 'json', got %v", loader.Get("output.format"))
	}
}

// TestGetResolvedConfig tests that defaults show up in the resolved settings.
func TestGetResolvedConfig(t *testing.T) {
	loader := newTestLoader(t)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	settings := loader.GetResolvedConfig()
	for _, key := range []string{"log_level", "locator", "ocr", "server", "batch", "watch"} {
		if _, ok := settings[key]; !ok {
			t.Errorf("Expected resolved config to contain %q", key)
		}
	}
}

// TestGenerateDefaultConfigFile tests writing and reloading the default file.
func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "meterread.yaml")
	if err := GenerateDefaultConfigFile(path); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() unexpected error: %v", err)
	}

	cfg, err := newTestLoader(t).LoadWithFile(path)
	if err != nil {
		t.Fatalf("Reloading generated file failed: %v", err)
	}
	if cfg.Locator.PreferredAspect != 3.5 {
		t.Errorf("Expected preferred aspect 3.5, got %v", cfg.Locator.PreferredAspect)
	}
	if cfg.OCR.Whitelist != "0123456789." {
		t.Errorf("Expected default whitelist, got %q", cfg.OCR.Whitelist)
	}
}

// TestGenerateDefaultConfigFileWithEmptyFilename tests the default file name.
func TestGenerateDefaultConfigFileWithEmptyFilename(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := GenerateDefaultConfigFile(""); err != nil {
		t.Fatalf("GenerateDefaultConfigFile() unexpected error: %v", err)
	}
	if _, err := os.Stat("meterread.yaml"); err != nil {
		t.Errorf("Expected meterread.yaml to be created: %v", err)
	}
}

// TestGetConfigSearchPaths tests the search path order.
func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	if paths[0] != "." {
		t.Errorf("Expected '.' first, got %s", paths[0])
	}
	if paths[len(paths)-1] != "/etc/meterread" {
		t.Errorf("Expected '/etc/meterread' last, got %s", paths[len(paths)-1])
	}
	found := false
	for _, p := range paths {
		if p == filepath.Join("/xdg", "meterread") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected XDG path in %v", paths)
	}
}

// TestPrintConfigInfo tests the debug output.
func TestPrintConfigInfo(t *testing.T) {
	var buf bytes.Buffer
	NewLoaderWithViper(viper.New()).PrintConfigInfo(&buf)
	if !strings.Contains(buf.String(), "Environment prefix: METERREAD") {
		t.Errorf("Unexpected output: %s", buf.String())
	}
}
