package support

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/server"
)

// HTTPTestServerWrapper wraps httptest.Server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
	Engine     *StubEngine
}

// StubEngine answers every single-line recognition with Text so server
// scenarios run without Tesseract.
type StubEngine struct {
	Text string
}

// Recognize implements reading.Engine.
func (e *StubEngine) Recognize(_ context.Context, _ image.Image, opts reading.RecognizeOptions) (string, error) {
	if opts.Mode == reading.SingleLine {
		return e.Text, nil
	}
	return "", nil
}

// createTestHTTPServer starts an in-process server backed by a stub engine.
func (testCtx *TestContext) createTestHTTPServer(text string, maxUploadMB int64) error {
	if err := testCtx.StopServer(); err != nil {
		return err
	}

	engine := &StubEngine{Text: text}
	reader := meter.New(
		classifier.New(classifier.DefaultConfig()),
		locator.New(locator.DefaultConfig()),
		reading.NewExtractor(engine, reading.DefaultConfig()),
	)
	srv := server.NewServer(server.Config{
		CORSOrigin:  "*",
		MaxUploadMB: maxUploadMB,
		TimeoutSec:  30,
		Version:     "integration",
	}, reader)

	mux := http.NewServeMux()
	srv.SetupRoutes(mux)

	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: srv,
		Engine:     engine,
	}
	return nil
}

// stopTestHTTPServer stops the httptest server.
func (testCtx *TestContext) stopTestHTTPServer() error {
	if testCtx.HTTPTestServer != nil && testCtx.HTTPTestServer.Server != nil {
		testCtx.HTTPTestServer.Server.Close()
		testCtx.HTTPTestServer = nil
	}
	return nil
}
