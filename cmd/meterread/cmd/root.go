// Package cmd implements the meterread command line interface.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/config"
	"github.com/MeKo-Tech/meterread/internal/engine/tesseract"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration loader of the current invocation.
	configLoader *config.Loader
	// Configuration of the current invocation.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// newEngine builds the OCR engine used by every reading command.
var newEngine = func(cfg *config.Config) reading.Engine {
	return tesseract.New(cfg.ToTesseractConfig())
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meterread",
		Short: "Read hot and cold water meters from photos",
		Long: `meterread classifies photos of water meters as hot or cold water by their
body color, locates the digital display and extracts the numeric reading
with an ensemble of OCR attempts.

This tool provides:
- Single photo and batch processing with text, json, csv, yaml and xlsx reports
- An HTTP and WebSocket API with Prometheus metrics
- A folder watcher for photos dropped into a directory
- MCP tools for assistants

Examples:
  meterread read IMG_0001.jpg
  meterread batch photos/ --recursive --format xlsx
  meterread serve --port 8080`,
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/meterread, /etc/meterread)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd.Root()); err != nil {
			return err
		}
		setupLogging(cmd.ErrOrStderr(), globalConfig)
		return nil
	}

	rootCmd.AddCommand(
		newClassifyCmd(),
		newLocateCmd(),
		newReadCmd(),
		newBatchCmd(),
		newServeCmd(),
		newWatchCmd(),
		newMCPCmd(),
		newCheckCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// initConfig loads configuration for this invocation. Every run gets a
// fresh viper instance with the persistent flags bound to it.
func initConfig(root *cobra.Command) error {
	v := viper.New()
	_ = v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	configLoader = config.NewLoaderWithViper(v)

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// setupLogging installs the JSON slog handler. Logs go to stderr so that
// reports on stdout stay machine readable.
func setupLogging(w io.Writer, cfg *config.Config) {
	var logLevel slog.Level
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// GetConfig returns the configuration of the current invocation.
func GetConfig() *config.Config {
	if globalConfig == nil {
		cfg := config.DefaultConfig()
		globalConfig = &cfg
	}
	return globalConfig
}

// GetConfigLoader returns the configuration loader of the current invocation.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoaderWithViper(viper.New())
	}
	return configLoader
}

// readerOptions are the per-command overrides of the reading flow.
type readerOptions struct {
	diagnostics bool
	displayDir  string // empty disables crop persistence
}

// buildReader assembles the meter reader from configuration.
func buildReader(cfg *config.Config, opts readerOptions) *meter.Reader {
	var locOpts []locator.Option
	if opts.displayDir != "" {
		locOpts = append(locOpts, locator.WithSink(locator.NewDirSink(opts.displayDir)))
	}
	return meter.New(
		classifier.New(cfg.ToClassifierConfig()),
		locator.New(cfg.ToLocatorConfig(), locOpts...),
		reading.NewExtractor(newEngine(cfg), cfg.ToReadingConfig()),
		meter.WithDiagnostics(opts.diagnostics),
	)
}

// displayDirFor resolves the crop directory from the save flag and config.
func displayDirFor(cmd *cobra.Command, cfg *config.Config) string {
	save := cfg.Locator.SaveDisplay
	if cmd.Flags().Changed("save-display") {
		save, _ = cmd.Flags().GetBool("save-display")
	}
	if !save {
		return ""
	}
	dir := cfg.Locator.DisplayDir
	if cmd.Flags().Changed("display-dir") {
		dir, _ = cmd.Flags().GetString("display-dir")
	}
	if dir == "" {
		dir = "displays"
	}
	return dir
}
