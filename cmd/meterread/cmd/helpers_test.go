package cmd

import (
	"bytes"
	"context"
	"image"
	"sync"
	"testing"

	"github.com/MeKo-Tech/meterread/internal/config"
	"github.com/MeKo-Tech/meterread/internal/reading"
)

// syncBuffer is a bytes.Buffer safe for the watcher goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// isolate runs the test in an empty directory without any user config.
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return dir
}

// useStubEngine replaces Tesseract with an engine answering text in single
// line mode.
func useStubEngine(t *testing.T, text string) {
	t.Helper()

	prev := newEngine
	newEngine = func(*config.Config) reading.Engine {
		return reading.EngineFunc(func(_ context.Context, _ image.Image, opts reading.RecognizeOptions) (string, error) {
			if opts.Mode == reading.SingleLine {
				return text, nil
			}
			return "", nil
		})
	}
	t.Cleanup(func() { newEngine = prev })
}

// execute runs the command line with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCommand()
	var out, errOut syncBuffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), errOut.String(), err
}
