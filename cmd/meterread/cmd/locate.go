package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/utils"
	"github.com/spf13/cobra"
)

func newLocateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate <images...>",
		Short: "Locate and save the display window of meter photos",
		Long: `Locate the digital display in one or more meter photos and save each crop
as <name>_display.jpg in the output directory.

Examples:
  meterread locate IMG_0001.jpg
  meterread locate *.jpg --output-dir crops`,
		Args: cobra.MinimumNArgs(1),
		RunE: runLocate,
	}
	cmd.Flags().StringP("output-dir", "o", "displays", "directory for the display crops")
	return cmd
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir, _ := cmd.Flags().GetString("output-dir")
	if !cmd.Flags().Changed("output-dir") && cfg.Locator.DisplayDir != "" {
		dir = cfg.Locator.DisplayDir
	}

	loc := locator.New(cfg.ToLocatorConfig(), locator.WithSink(locator.NewDirSink(dir)))
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		img, _, err := utils.LoadImage(path)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "%s: error: %v\n", path, err)
			continue
		}
		res, err := loc.Locate(img, path)
		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "%s: error: %v\n", path, err)
			continue
		}
		if res.SaveError != "" {
			failed++
			_, _ = fmt.Fprintf(out, "%s: error: %s\n", path, res.SaveError)
			continue
		}

		box := meter.BoxFromRect(res.SourceBox())
		note := ""
		if res.Fallback {
			note = " (fallback)"
		}
		_, _ = fmt.Fprintf(out, "%s -> %s [%d,%d %dx%d]%s\n", path, res.SavedPath, box.X, box.Y, box.W, box.H, note)
		slog.Debug("saved display crop", "file", path, "crop", res.SavedPath, "fallback", res.Fallback)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be located", failed, len(args))
	}
	return nil
}
