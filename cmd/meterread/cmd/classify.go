package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/spf13/cobra"
)

// classification is one line of classify output.
type classification struct {
	File        string `json:"file"`
	ServiceType string `json:"service_type"`
	RedPixels   int    `json:"red_pixels"`
	BluePixels  int    `json:"blue_pixels"`
	Error       string `json:"error,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <images...>",
		Short: "Classify meter photos as hot or cold water",
		Long: `Classify one or more meter photos as hot or cold water by a red against
blue vote over the saturated, bright pixels.

Examples:
  meterread classify IMG_0001.jpg
  meterread classify *.jpg --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().StringP("format", "f", batch.FormatText, "output format: text, json")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	format, _ := cmd.Flags().GetString("format")
	if format != batch.FormatText && format != batch.FormatJSON {
		return fmt.Errorf("invalid output format: %s (must be one of: text, json)", format)
	}

	c := classifier.New(cfg.ToClassifierConfig())
	results := make([]classification, 0, len(args))
	failed := 0
	for _, path := range args {
		entry := classification{File: path, ServiceType: classifier.Unknown.String()}
		img, _, err := utils.LoadImage(path)
		if err == nil {
			var res classifier.Result
			res, err = c.Classify(img)
			entry.ServiceType = res.Type.String()
			entry.RedPixels = res.RedPixels
			entry.BluePixels = res.BluePixels
		}
		if err != nil {
			entry.Error = err.Error()
			failed++
		}
		results = append(results, entry)
	}

	if err := writeClassifications(cmd.OutOrStdout(), results, format); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be classified", failed, len(args))
	}
	return nil
}

func writeClassifications(w io.Writer, results []classification, format string) error {
	if format == batch.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	var errs []error
	for _, r := range results {
		var err error
		if r.Error != "" {
			_, err = fmt.Fprintf(w, "%s: error: %s\n", r.File, r.Error)
		} else {
			_, err = fmt.Fprintf(w, "%s: %s (red=%d, blue=%d)\n", r.File, r.ServiceType, r.RedPixels, r.BluePixels)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
