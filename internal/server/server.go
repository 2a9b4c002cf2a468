// Package server exposes the meter reader over HTTP and WebSocket.
package server

import (
	"net/http"
	"time"

	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	reader      *meter.Reader
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	version     string
	rateLimiter *RateLimiter // nil when rate limiting is disabled
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	Version     string // reported by /health
	RateLimit   RateLimitConfig
}

// NewServer creates a server around reader.
func NewServer(config Config, reader *meter.Reader) *Server {
	if config.MaxUploadMB <= 0 {
		config.MaxUploadMB = 50
	}
	if config.TimeoutSec <= 0 {
		config.TimeoutSec = 30
	}
	s := &Server{
		reader:      reader,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeout:     time.Duration(config.TimeoutSec) * time.Second,
		version:     config.Version,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/meter/read", s.corsMiddleware(s.rateLimitMiddleware(s.readHandler)))
	mux.HandleFunc("/meter/classify", s.corsMiddleware(s.rateLimitMiddleware(s.classifyHandler)))
	mux.HandleFunc("/meter/display", s.corsMiddleware(s.rateLimitMiddleware(s.displayHandler)))
	mux.HandleFunc("/ws/meter", s.rateLimitMiddleware(s.meterWebSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with every route installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

// ClassifyResponse is returned by /meter/classify.
type ClassifyResponse struct {
	File        string `json:"file"`
	ServiceType string `json:"service_type"`
	RedPixels   int    `json:"red_pixels"`
	BluePixels  int    `json:"blue_pixels"`
}

// ReadResponse is the JSON body of /meter/read.
type ReadResponse struct {
	TakenAt string         `json:"taken_at"`
	Reading *meter.Reading `json:"reading"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}
