package batch

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReader(text string) *meter.Reader {
	engine := reading.EngineFunc(func(_ context.Context, _ image.Image, opts reading.RecognizeOptions) (string, error) {
		if opts.Mode == reading.SingleLine {
			return text, nil
		}
		return "", nil
	})
	return meter.New(
		classifier.New(classifier.DefaultConfig()),
		locator.New(locator.DefaultConfig()),
		reading.NewExtractor(engine, reading.DefaultConfig()),
	)
}

func TestProcessBatch(t *testing.T) {
	dir := t.TempDir()
	paths := testutil.WriteMeterPhotos(t, dir, 3)

	cfg := DefaultConfig()
	cfg.Workers = 2
	var progress bytes.Buffer
	res, err := ProcessBatch(context.Background(), []string{dir}, newTestReader("00118.664"), cfg, &progress)
	require.NoError(t, err)

	assert.Equal(t, paths, res.ImagePaths)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Hot Water", res.Rows[0].ServiceType)
	assert.Equal(t, "Cold Water", res.Rows[1].ServiceType)
	assert.Equal(t, "00118.664", res.Rows[2].Reading)
	assert.Equal(t, NoEXIF, res.Rows[0].TakenAt)
	assert.Contains(t, progress.String(), "Found 3 image(s)")

	s := res.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 3, s.Found)
	assert.Equal(t, 2, s.HotWater)
	assert.Equal(t, 1, s.ColdWater)

	var out bytes.Buffer
	res.PrintStats(&out, false)
	assert.Contains(t, out.String(), "Readings found: 3")

	out.Reset()
	res.PrintStats(&out, true)
	assert.Empty(t, out.String())
}

func TestProcessBatch_QuietHasNoProgress(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteMeterPhotos(t, dir, 1)

	cfg := DefaultConfig()
	cfg.Quiet = true
	var progress bytes.Buffer
	_, err := ProcessBatch(context.Background(), []string{dir}, newTestReader(""), cfg, &progress)
	require.NoError(t, err)
	assert.Empty(t, progress.String())
}

func TestProcessBatch_NoImages(t *testing.T) {
	_, err := ProcessBatch(context.Background(), []string{t.TempDir()}, newTestReader(""), DefaultConfig(), nil)
	require.ErrorIs(t, err, ErrNoImages)
}

func TestProcessBatch_UnreadableFile(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteMeterPhotos(t, dir, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz_broken.jpg"), []byte("nope"), 0o600))

	res, err := ProcessBatch(context.Background(), []string{dir}, newTestReader("42.5"), DefaultConfig(), nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.NotEmpty(t, res.Rows[1].Error)
	assert.Equal(t, 1, res.Stats().Failed)

	cfg := DefaultConfig()
	cfg.ContinueOnError = false
	cfg.Workers = 1
	_, err = ProcessBatch(context.Background(), []string{dir}, newTestReader("42.5"), cfg, nil)
	var fe *meter.FileError
	require.ErrorAs(t, err, &fe)
}

func TestSaveResults(t *testing.T) {
	readings := sampleReadings()
	res := &Result{Readings: readings, Rows: sampleRows(readings)}

	var out bytes.Buffer
	require.NoError(t, res.SaveResults(&out, FormatCSV, "", "", false))
	assert.Contains(t, out.String(), "hot.jpg")

	dir := t.TempDir()
	target := filepath.Join(dir, "out", "report.json")
	out.Reset()
	require.NoError(t, res.SaveResults(&out, FormatJSON, target, "", false))
	assert.Contains(t, out.String(), "Results written to")
	assert.True(t, testutil.FileExists(target))

	out.Reset()
	require.NoError(t, res.SaveResults(&out, FormatXLSX, "", filepath.Join(dir, "results"), false))
	assert.Contains(t, out.String(), "Excel file created: ")
	matches, err := filepath.Glob(filepath.Join(dir, "results", "*__images.xlsx"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workers = -1
	require.Error(t, cfg.Validate())
}

func TestDefaultXLSXPath(t *testing.T) {
	now := time.Date(2024, 5, 17, 8, 30, 59, 0, time.UTC)
	assert.Equal(t, filepath.Join("out", "2024.05.17T08.30__images.xlsx"), DefaultXLSXPath("out", now))
	assert.Equal(t, filepath.Join("results", "2024.05.17T08.30__images.xlsx"), DefaultXLSXPath("", now))
}
