// Package mcptool exposes the meter reader as Model Context Protocol tools.
package mcptool

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var pathInputSchema = map[string]any{
	"type":     "object",
	"required": []string{"path"},
	"properties": map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path to a meter photo (jpg, jpeg, png or bmp) readable by the server",
		},
	},
}

// MetadataClassifyWaterMeter describes the classify_water_meter tool.
var MetadataClassifyWaterMeter = &mcp.Tool{
	Name: "classify_water_meter",
	Description: "Classify a water meter photo as hot or cold water by voting red against blue " +
		"saturated pixels. Returns the service type together with the pixel counts.",
	InputSchema: pathInputSchema,
	OutputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file":         map[string]any{"type": "string"},
			"service_type": map[string]any{"type": "string", "enum": []string{"Hot Water", "Cold Water", "Unknown"}},
			"red_pixels":   map[string]any{"type": "integer"},
			"blue_pixels":  map[string]any{"type": "integer"},
		},
	},
}

// MetadataReadWaterMeter describes the read_water_meter tool.
var MetadataReadWaterMeter = &mcp.Tool{
	Name: "read_water_meter",
	Description: "Read a water meter photo: classify the service type, locate the display window " +
		"and extract the numeric reading. Found is false when no reading could be recognized.",
	InputSchema:  pathInputSchema,
	OutputSchema: map[string]any{"type": "object"},
}

// InputPath is the input of both tools.
type InputPath struct {
	Path string `json:"path"`
}

// OutputClassifyWaterMeter is the output of classify_water_meter.
type OutputClassifyWaterMeter struct {
	File        string `json:"file"`
	ServiceType string `json:"service_type"`
	RedPixels   int    `json:"red_pixels"`
	BluePixels  int    `json:"blue_pixels"`
}

// Tools binds the tool handlers to a reader.
type Tools struct {
	reader *meter.Reader
}

// NewTools creates the handlers.
func NewTools(reader *meter.Reader) *Tools {
	return &Tools{reader: reader}
}

// ClassifyWaterMeter classifies the photo at input.Path.
func (t *Tools) ClassifyWaterMeter(_ context.Context, _ *mcp.CallToolRequest, input InputPath) (*mcp.CallToolResult, OutputClassifyWaterMeter, error) {
	if input.Path == "" {
		return nil, OutputClassifyWaterMeter{}, errors.New("path is required")
	}
	img, _, err := utils.LoadImage(input.Path)
	if err != nil {
		return nil, OutputClassifyWaterMeter{}, err
	}
	res, err := t.reader.Classifier().Classify(img)
	if err != nil {
		return nil, OutputClassifyWaterMeter{}, fmt.Errorf("classify %s: %w", input.Path, err)
	}
	return nil, OutputClassifyWaterMeter{
		File:        input.Path,
		ServiceType: res.Type.String(),
		RedPixels:   res.RedPixels,
		BluePixels:  res.BluePixels,
	}, nil
}

// ReadWaterMeter runs the full reading flow on the photo at input.Path.
func (t *Tools) ReadWaterMeter(ctx context.Context, _ *mcp.CallToolRequest, input InputPath) (*mcp.CallToolResult, meter.Reading, error) {
	if input.Path == "" {
		return nil, meter.Reading{}, errors.New("path is required")
	}
	r, err := t.reader.ReadFile(ctx, input.Path)
	if err != nil {
		return nil, meter.Reading{}, err
	}
	return nil, *r, nil
}
