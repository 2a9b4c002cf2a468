package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/meterread/internal/config"
	"github.com/MeKo-Tech/meterread/internal/server"
	"github.com/MeKo-Tech/meterread/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for the meter reading API",
		Long: `Start an HTTP server that provides REST and WebSocket endpoints for meter photos.

The server provides the following endpoints:
  POST /meter/read     - Read an uploaded photo (format=json|csv|text, diagnostics=1)
  POST /meter/classify - Classify an uploaded photo as hot or cold water
  POST /meter/display  - Return the display crop as JPEG
  GET  /ws/meter       - WebSocket reading endpoint
  GET  /health         - Health check endpoint
  GET  /metrics        - Prometheus metrics

Examples:
  meterread serve
  meterread serve --port 8080
  meterread serve --host 0.0.0.0 --port 3000
  meterread serve --rate-limit-enabled --requests-per-minute 10`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringP("host", "H", "localhost", "server host")
	cmd.Flags().IntP("port", "p", 8080, "server port")
	cmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	cmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	cmd.Flags().Int("timeout", 30, "request timeout in seconds")
	cmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	cmd.Flags().Bool("rate-limit-enabled", false, "enable per-client rate limiting on /meter and /ws endpoints")
	cmd.Flags().Int("requests-per-minute", 30, "maximum requests per minute per client")
	cmd.Flags().Int("requests-per-hour", 600, "maximum requests per hour per client")
	cmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
	cmd.Flags().Int64("max-data-per-day", 500*1024*1024, "maximum uploaded bytes per day per client")
	return cmd
}

// serverSettings resolves the server section with CLI flag overrides.
func serverSettings(cfg *config.Config, cmd *cobra.Command) config.ServerConfig {
	sc := cfg.Server
	if cmd.Flags().Changed("host") {
		sc.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		sc.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		sc.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("max-upload-size") {
		sc.MaxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
	}
	if cmd.Flags().Changed("timeout") {
		sc.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	if cmd.Flags().Changed("shutdown-timeout") {
		sc.ShutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}
	if cmd.Flags().Changed("rate-limit-enabled") {
		sc.RateLimitEnabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
	}
	if cmd.Flags().Changed("requests-per-minute") {
		sc.RequestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
	}
	if cmd.Flags().Changed("requests-per-hour") {
		sc.RequestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
	}
	if cmd.Flags().Changed("max-requests-per-day") {
		sc.MaxRequestsPerDay, _ = cmd.Flags().GetInt("max-requests-per-day")
	}
	if cmd.Flags().Changed("max-data-per-day") {
		sc.MaxDataPerDay, _ = cmd.Flags().GetInt64("max-data-per-day")
	}
	return sc
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	sc := serverSettings(cfg, cmd)

	if sc.Port < 1 || sc.Port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", sc.Port)
	}
	if sc.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", sc.MaxUploadMB)
	}
	if sc.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", sc.TimeoutSec)
	}

	reader := buildReader(cfg, readerOptions{diagnostics: cfg.OCR.Diagnostics})
	meterServer := server.NewServer(server.Config{
		Host:        sc.Host,
		Port:        sc.Port,
		CORSOrigin:  sc.CORSOrigin,
		MaxUploadMB: int64(sc.MaxUploadMB),
		TimeoutSec:  sc.TimeoutSec,
		Version:     version.Version,
		RateLimit: server.RateLimitConfig{
			Enabled:           sc.RateLimitEnabled,
			RequestsPerMinute: sc.RequestsPerMinute,
			RequestsPerHour:   sc.RequestsPerHour,
			MaxRequestsPerDay: sc.MaxRequestsPerDay,
			MaxDataPerDay:     sc.MaxDataPerDay,
		},
	}, reader)

	mux := http.NewServeMux()
	meterServer.SetupRoutes(mux)

	// Uploads need the full request timeout plus the OCR run.
	timeout := time.Duration(sc.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting meter reading server", "host", sc.Host, "port", sc.Port,
			"rate_limit", sc.RateLimitEnabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			serveErr <- err
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", sc.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(sc.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
		return nil
	}
}
