package meter

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/classifier"
	"github.com/MeKo-Tech/meterread/internal/locator"
	"github.com/MeKo-Tech/meterread/internal/reading"
	"github.com/MeKo-Tech/meterread/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubEngine(text string) reading.Engine {
	return reading.EngineFunc(func(_ context.Context, _ image.Image, opts reading.RecognizeOptions) (string, error) {
		if opts.Mode == reading.SingleLine {
			return text, nil
		}
		return "", nil
	})
}

func newReader(engine reading.Engine, opts ...Option) *Reader {
	return New(
		classifier.New(classifier.DefaultConfig()),
		locator.New(locator.DefaultConfig()),
		reading.NewExtractor(engine, reading.DefaultConfig()),
		opts...,
	)
}

func TestReadImage_HotMeter(t *testing.T) {
	cfg := testutil.DefaultMeterPhotoConfig()
	img := testutil.GenerateMeterPhoto(cfg)

	r := newReader(stubEngine("00118.664")).ReadImage(context.Background(), img, "hot.png")

	assert.Equal(t, "hot.png", r.File)
	assert.Equal(t, classifier.HotWater, r.ServiceType)
	require.NotNil(t, r.Classification)
	assert.Greater(t, r.Classification.RedPixels, r.Classification.BluePixels)

	require.NotNil(t, r.Display)
	assert.False(t, r.Display.Fallback)
	assert.True(t, cfg.Display.In(r.Display.SourceBox.Rect()))

	assert.True(t, r.Found)
	assert.Equal(t, "00118.664", r.Value)
	assert.Equal(t, OutcomeFound, r.Outcome())
	assert.NotEmpty(t, r.Candidates)
	assert.Empty(t, r.Attempts, "attempts only with diagnostics")
	assert.Empty(t, r.Errors)
	assert.GreaterOrEqual(t, r.Processing.TotalMs, r.Processing.ExtractMs)
}

func TestReadImage_ColdMeterWithDiagnostics(t *testing.T) {
	cfg := testutil.DefaultMeterPhotoConfig()
	cfg.Body = testutil.ColdBody
	img := testutil.GenerateMeterPhoto(cfg)

	r := newReader(stubEngine("4711"), WithDiagnostics(true)).ReadImage(context.Background(), img, "cold.png")
	assert.Equal(t, classifier.ColdWater, r.ServiceType)
	assert.Equal(t, "4711", r.Value)
	assert.Len(t, r.Attempts, 15)
}

func TestReadImage_NoReading(t *testing.T) {
	img := testutil.GenerateMeterPhoto(testutil.DefaultMeterPhotoConfig())
	r := newReader(stubEngine("")).ReadImage(context.Background(), img, "blank.png")

	assert.False(t, r.Found)
	assert.Empty(t, r.Value)
	assert.Equal(t, OutcomeNone, r.Outcome())
	assert.Equal(t, "No reading found", r.DisplayValue())
}

func TestReadImage_InvalidImageIsRecorded(t *testing.T) {
	r := newReader(stubEngine("123")).ReadImage(context.Background(), nil, "nil.png")

	assert.Equal(t, classifier.Unknown, r.ServiceType)
	assert.Nil(t, r.Display)
	assert.False(t, r.Found)
	assert.Len(t, r.Errors, 2) // classify and locate
	assert.Equal(t, OutcomeError, r.Outcome())
}

func TestReadImage_LocateFailureSkipsExtraction(t *testing.T) {
	called := false
	engine := reading.EngineFunc(func(context.Context, image.Image, reading.RecognizeOptions) (string, error) {
		called = true
		return "999", nil
	})
	tiny := image.NewRGBA(image.Rect(0, 0, 1, 1))

	r := newReader(engine).ReadImage(context.Background(), tiny, "tiny.png")
	assert.False(t, called)
	assert.False(t, r.Found)
	require.NotEmpty(t, r.Errors)
	assert.Contains(t, r.Errors[0], "locate")
}

func TestReadImage_EnginePanicIsRecorded(t *testing.T) {
	engine := reading.EngineFunc(func(context.Context, image.Image, reading.RecognizeOptions) (string, error) {
		panic("engine exploded")
	})
	img := testutil.GenerateMeterPhoto(testutil.DefaultMeterPhotoConfig())

	r := newReader(engine, WithDiagnostics(true)).ReadImage(context.Background(), img, "panic.png")
	assert.False(t, r.Found)
	require.Len(t, r.Attempts, 15)
	assert.Contains(t, r.Attempts[0].Err, "engine exploded")
}

func TestRecoverStage(t *testing.T) {
	r := &Reading{File: "x"}
	func() {
		defer recoverStage("extract", r)
		panic("boom")
	}()
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0], "extract: panic: boom")
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteMeterPhoto(t, dir, "meter.png", testutil.DefaultMeterPhotoConfig())

	r, err := newReader(stubEngine("00118.664")).ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, r.File)
	assert.Equal(t, "00118.664", r.Value)

	_, err = newReader(stubEngine("")).ReadFile(context.Background(), filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	bad := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o600))
	_, err = newReader(stubEngine("")).ReadFile(context.Background(), bad)
	require.Error(t, err)
}

func TestReadImage_PersistsDisplay(t *testing.T) {
	dir := t.TempDir()
	rd := New(
		classifier.New(classifier.DefaultConfig()),
		locator.New(locator.DefaultConfig(), locator.WithSink(locator.NewDirSink(dir))),
		reading.NewExtractor(stubEngine("123.4"), reading.DefaultConfig()),
	)
	img := testutil.GenerateMeterPhoto(testutil.DefaultMeterPhotoConfig())
	r := rd.ReadImage(context.Background(), img, "IMG_7.jpg")

	require.NotNil(t, r.Display)
	assert.Equal(t, filepath.Join(dir, "IMG_7_display.jpg"), r.Display.SavedPath)
	assert.True(t, testutil.FileExists(r.Display.SavedPath))
}

func TestReadFiles_Order(t *testing.T) {
	dir := t.TempDir()
	paths := testutil.WriteMeterPhotos(t, dir, 4)
	paths = append(paths, filepath.Join(dir, "missing.png"))

	var buf bytes.Buffer
	readings, err := newReader(stubEngine("123.45")).ReadFiles(context.Background(), paths, ParallelConfig{
		MaxWorkers:       3,
		ContinueOnError:  true,
		ProgressCallback: NewConsoleProgressCallback(&buf, ""),
	})
	require.NoError(t, err)
	require.Len(t, readings, 5)

	for i, r := range readings[:4] {
		require.NotNil(t, r)
		assert.Equal(t, paths[i], r.File)
		if i%2 == 0 {
			assert.Equal(t, classifier.HotWater, r.ServiceType)
		} else {
			assert.Equal(t, classifier.ColdWater, r.ServiceType)
		}
	}
	assert.NotEmpty(t, readings[4].Errors)
	assert.Contains(t, buf.String(), "Found 5 image(s)")
	assert.Contains(t, buf.String(), "Completed")
}

func TestReadFiles_StopOnError(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "missing.png")}
	paths = append(paths, testutil.WriteMeterPhotos(t, dir, 2)...)

	_, err := newReader(stubEngine("")).ReadFiles(context.Background(), paths, ParallelConfig{MaxWorkers: 1})
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, fe.Index)
}

func TestReadFiles_Empty(t *testing.T) {
	_, err := newReader(stubEngine("")).ReadFiles(context.Background(), nil, DefaultParallelConfig())
	require.ErrorIs(t, err, ErrNoFiles)
}

func TestBoxRoundTrip(t *testing.T) {
	r := image.Rect(3, 4, 10, 20)
	b := BoxFromRect(r)
	assert.Equal(t, Box{X: 3, Y: 4, W: 7, H: 16}, b)
	assert.Equal(t, r, b.Rect())
}

func TestDiagnosticsCopy(t *testing.T) {
	base := newReader(stubEngine("4711"))
	diag := base.Diagnostics(true)
	require.NotSame(t, base, diag)
	assert.Same(t, base.Locator(), diag.Locator())

	img := testutil.GenerateMeterPhoto(testutil.DefaultMeterPhotoConfig())
	assert.Len(t, diag.ReadImage(context.Background(), img, "a.png").Attempts, 15)
	assert.Empty(t, base.ReadImage(context.Background(), img, "a.png").Attempts)
}
