package cmd

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/MeKo-Tech/meterread/internal/engine/tesseract"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/spf13/cobra"
)

// tesseractVersion reports the linked OCR library version.
var tesseractVersion = tesseract.Version

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the Tesseract OCR setup",
		Long: `Check that the Tesseract library is linked and that the configured language
data can be loaded, by recognizing a small blank image.

If the check fails, install Tesseract and its language data, for example
  apt install tesseract-ocr libtesseract-dev
and point tesseract.tessdata_prefix at the tessdata directory if needed.`,
		Args: cobra.NoArgs,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintln(out, "Checking Tesseract OCR setup...")
	_, _ = fmt.Fprintf(out, "Tesseract version: %s\n", tesseractVersion())
	_, _ = fmt.Fprintf(out, "Language: %s\n", cfg.ToTesseractConfig().Language)
	if prefix := cfg.Tesseract.TessdataPrefix; prefix != "" {
		_, _ = fmt.Fprintf(out, "Tessdata prefix: %s\n", prefix)
	}

	sample := image.NewGray(image.Rect(0, 0, 64, 32))
	draw.Draw(sample, sample.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	if _, err := newEngine(cfg).Recognize(cmd.Context(), sample, reading.RecognizeOptions{Mode: reading.SingleLine}); err != nil {
		_, _ = fmt.Fprintf(out, "Tesseract check failed: %v\n", err)
		return fmt.Errorf("tesseract check failed: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Tesseract is ready for use.")
	return nil
}
