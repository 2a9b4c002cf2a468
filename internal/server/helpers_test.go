package server

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a server whose engine answers text in single-line mode.
func newTestServer(text string) *Server {
	return newTestServerWithConfig(text, Config{CORSOrigin: "*", MaxUploadMB: 5, TimeoutSec: 10, Version: "test"})
}

func newTestServerWithConfig(text string, config Config) *Server {
	engine := reading.EngineFunc(func(_ context.Context, _ image.Image, opts reading.RecognizeOptions) (string, error) {
		if opts.Mode == reading.SingleLine {
			return text, nil
		}
		return "", nil
	})
	reader := meter.New(
		classifier.New(classifier.DefaultConfig()),
		locator.New(locator.DefaultConfig()),
		reading.NewExtractor(engine, reading.DefaultConfig()),
	)
	return NewServer(config, reader)
}

// meterPhotoPNG encodes a synthetic meter photo.
func meterPhotoPNG(t *testing.T, cfg testutil.MeterPhotoConfig) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testutil.GenerateMeterPhoto(cfg)))
	return buf.Bytes()
}

// createMultipartFormRequest creates a multipart form request with an image.
func createMultipartFormRequest(t *testing.T, target string, imageData []byte, filename string, extraFields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(imageData)
	require.NoError(t, err)

	for key, value := range extraFields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
