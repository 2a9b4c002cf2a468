// Package tesseract implements reading.Engine on libtesseract.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Config holds engine settings.
type Config struct {
	Language       string // Tesseract language (default: "eng")
	TessdataPrefix string // Directory containing tessdata, empty for the library default
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{Language: "eng"}
}

// Engine recognizes text with a fresh Tesseract client per call. Clients
// are not shared, so Engine is safe for concurrent use.
type Engine struct {
	config Config
}

// New creates a Tesseract engine.
func New(config Config) *Engine {
	if config.Language == "" {
		config.Language = "eng"
	}
	return &Engine{config: config}
}

// Recognize runs Tesseract on img restricted to opts.
func (e *Engine) Recognize(ctx context.Context, img image.Image, opts reading.RecognizeOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	client, err := e.newClient()
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	if opts.Mode != 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(opts.Mode)); err != nil {
			return "", fmt.Errorf("set page segmentation mode %d: %w", int(opts.Mode), err)
		}
	}
	if opts.Whitelist != "" {
		if err := client.SetWhitelist(opts.Whitelist); err != nil {
			return "", fmt.Errorf("set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w", opts.Mode, err)
	}
	return strings.TrimSpace(text), nil
}

func (e *Engine) newClient() (*gosseract.Client, error) {
	client := gosseract.NewClient()
	if e.config.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.config.TessdataPrefix); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(e.config.Language); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("set language %q: %w", e.config.Language, err)
	}
	return client, nil
}

// Version reports the linked Tesseract library version.
func Version() string {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()
	return client.Version()
}

var _ reading.Engine = (*Engine)(nil)
