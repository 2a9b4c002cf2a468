package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/disintegration/imaging"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: s.version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// upload is a decoded photo from a multipart request.
type upload struct {
	name string
	data []byte
	img  image.Image
}

// parseUpload reads the "image" form file. On failure the error response
// has already been written.
func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	if r.ContentLength > limit {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(len(data)))

	img, _, err := utils.DecodeImageBytes(data)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}

	name := header.Filename
	if name == "" {
		name = "upload"
	}
	return &upload{name: name, data: data, img: img}, true
}

// readHandler runs the full pipeline on an uploaded photo.
func (s *Server) readHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, ok := s.parseUpload(w, r)
	if !ok {
		readingsTotal.WithLabelValues("http", meter.OutcomeError).Inc()
		return
	}

	reader := s.reader
	if isTruthy(r.FormValue("diagnostics")) {
		reader = reader.Diagnostics(true)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	rd := reader.ReadImage(ctx, up.img, up.name)
	observeReading("http", rd)

	takenAt := batch.NoEXIF
	if t, ok := batch.TakenAtReader(bytes.NewReader(up.data)); ok {
		takenAt = t
	}

	switch format := r.FormValue("format"); format {
	case batch.FormatCSV, batch.FormatText:
		out, err := batch.FormatRows([]batch.Row{batch.NewRow(up.name, takenAt, rd)}, []*meter.Reading{rd}, format)
		if err != nil {
			http.Error(w, fmt.Sprintf("formatting failed: %v", err), http.StatusInternalServerError)
			return
		}
		if format == batch.FormatCSV {
			w.Header().Set("Content-Type", "text/csv")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		_, _ = io.WriteString(w, out)
	default:
		s.writeJSON(w, http.StatusOK, ReadResponse{TakenAt: takenAt, Reading: rd})
	}
}

// classifyHandler returns the service type of an uploaded photo.
func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, ok := s.parseUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.reader.Classifier().Classify(up.img)
	stageDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Classification failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	serviceTypesTotal.WithLabelValues(res.Type.Code()).Inc()

	s.writeJSON(w, http.StatusOK, ClassifyResponse{
		File:        up.name,
		ServiceType: res.Type.Code(),
		RedPixels:   res.RedPixels,
		BluePixels:  res.BluePixels,
	})
}

// displayHandler returns the display crop of an uploaded photo as JPEG.
func (s *Server) displayHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, ok := s.parseUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.reader.Locator().Locate(up.img, up.name)
	stageDuration.WithLabelValues("locate").Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Display location failed: %v", err), http.StatusUnprocessableEntity)
		return
	}
	if res.Fallback {
		displayFallbacksTotal.Inc()
	}

	box := meter.BoxFromRect(res.SourceBox())
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Display-Fallback", strconv.FormatBool(res.Fallback))
	w.Header().Set("X-Display-Box", fmt.Sprintf("%d,%d,%d,%d", box.X, box.Y, box.W, box.H))
	if err := imaging.Encode(w, res.Region, imaging.JPEG, imaging.JPEGQuality(utils.JPEGQuality)); err != nil {
		slog.Error("Failed to encode display crop", "file", up.name, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func isTruthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
