package reading

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modeEngine answers by segmentation mode.
type modeEngine struct {
	mu    sync.Mutex
	texts map[SegmentationMode]string
	errs  map[SegmentationMode]error
	calls []RecognizeOptions
}

func (m *modeEngine) Recognize(_ context.Context, _ image.Image, opts RecognizeOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, opts)
	m.mu.Unlock()
	if err := m.errs[opts.Mode]; err != nil {
		return "", err
	}
	return m.texts[opts.Mode], nil
}

// sequenceEngine answers by call index. Use it with a single worker.
type sequenceEngine struct {
	n     atomic.Int32
	texts []string
}

func (s *sequenceEngine) Recognize(_ context.Context, _ image.Image, _ RecognizeOptions) (string, error) {
	i := int(s.n.Add(1)) - 1
	if i < len(s.texts) {
		return s.texts[i], nil
	}
	return "", nil
}

func region() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 120, 40))
}

func TestExtract_PicksDecimalReading(t *testing.T) {
	engine := &modeEngine{texts: map[SegmentationMode]string{
		SingleLine: "00118.664",
		SingleWord: "0011866",
		RawLine:    "18.6",
	}}
	res, err := NewExtractor(engine, DefaultConfig()).Extract(context.Background(), region())
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "00118.664", res.Value)
	assert.Len(t, res.Attempts, 15)
	assert.Len(t, engine.calls, 15)
	for _, c := range engine.calls {
		assert.Equal(t, "0123456789.", c.Whitelist)
	}
}

func TestExtract_AttemptOrder(t *testing.T) {
	engine := &modeEngine{texts: map[SegmentationMode]string{}}
	res, err := NewExtractor(engine, DefaultConfig()).Extract(context.Background(), region())
	require.NoError(t, err)
	require.Len(t, res.Attempts, 15)

	modes := DefaultConfig().Modes
	for i, a := range res.Attempts {
		assert.Equal(t, Variants[i/len(modes)], a.Variant, "attempt %d", i)
		assert.Equal(t, modes[i%len(modes)], a.Mode, "attempt %d", i)
	}
	assert.False(t, res.Found)
	assert.Empty(t, res.Value)
}

func TestExtract_TiesGoToFirstInvocation(t *testing.T) {
	texts := make([]string, 15)
	texts[3] = "1234" // clahe, single line
	texts[6] = "5678" // otsu, single line
	cfg := DefaultConfig()
	cfg.Workers = 1

	res, err := NewExtractor(&sequenceEngine{texts: texts}, cfg).Extract(context.Background(), region())
	require.NoError(t, err)
	assert.Equal(t, "1234", res.Value)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, VariantCLAHE, res.Candidates[0].Variant)
}

func TestExtract_EngineErrorsAreRecorded(t *testing.T) {
	engine := &modeEngine{
		texts: map[SegmentationMode]string{SingleWord: "4711"},
		errs:  map[SegmentationMode]error{SingleLine: errors.New("engine crashed")},
	}
	res, err := NewExtractor(engine, DefaultConfig()).Extract(context.Background(), region())
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.Equal(t, "4711", res.Value)
	failed := 0
	for _, a := range res.Attempts {
		if a.Err != "" {
			failed++
			assert.Equal(t, SingleLine, a.Mode)
		}
	}
	assert.Equal(t, 5, failed)
}

func TestExtract_TooFewDigits(t *testing.T) {
	engine := &modeEngine{texts: map[SegmentationMode]string{SingleLine: "12", SingleWord: "1.2"}}
	res, err := NewExtractor(engine, DefaultConfig()).Extract(context.Background(), region())
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Candidates)
}

func TestExtract_NilRegion(t *testing.T) {
	res, err := NewExtractor(&modeEngine{}, DefaultConfig()).Extract(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilRegion)
	assert.False(t, res.Found)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &modeEngine{texts: map[SegmentationMode]string{SingleLine: "123.45"}}
	_, err := NewExtractor(engine, DefaultConfig()).Extract(ctx, region())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.calls)
}

func TestExtract_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	engine := EngineFunc(func(context.Context, image.Image, RecognizeOptions) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return "", nil
	})

	cfg := DefaultConfig()
	cfg.Workers = 2
	_, err := NewExtractor(engine, cfg).Extract(context.Background(), region())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Modes = nil
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workers = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinDigits = 0
	require.Error(t, cfg.Validate())
}

func TestSegmentationModeString(t *testing.T) {
	assert.Equal(t, "single_line", SingleLine.String())
	assert.Equal(t, "single_word", SingleWord.String())
	assert.Equal(t, "raw_line", RawLine.String())
	assert.Equal(t, "psm_6", SegmentationMode(6).String())
}
