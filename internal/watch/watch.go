// Package watch reads meter photos as they appear in watched directories.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/meterread/internal/batch"
	"github.com/MeKo-Tech/meterread/internal/meter"
	"github.com/fsnotify/fsnotify"
)

// Config controls the watcher.
type Config struct {
	Debounce        time.Duration // A file is read once it saw no events for this long (default: 500ms)
	Recursive       bool          // Watch subdirectories, including ones created later
	IncludePatterns []string      // File name globs to read (default: batch.DefaultIncludePatterns)
	ExcludePatterns []string      // File name globs to skip (default: batch.DefaultExcludePatterns)
}

// DefaultConfig returns the watcher defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:        500 * time.Millisecond,
		IncludePatterns: slices.Clone(batch.DefaultIncludePatterns),
		ExcludePatterns: slices.Clone(batch.DefaultExcludePatterns),
	}
}

// Handler receives every processed file. err is set when the file could not
// be loaded, in which case r carries the error text.
type Handler func(path string, r *meter.Reading, err error)

// Watcher feeds new photos to a meter reader.
type Watcher struct {
	reader  *meter.Reader
	config  Config
	handler Handler
	fsw     *fsnotify.Watcher
}

// New creates a watcher. Call Add for each directory, then Run.
func New(reader *meter.Reader, config Config, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{reader: reader, config: config, handler: handler, fsw: fsw}, nil
}

// Add watches dir, and its subdirectories when Recursive is set.
func (w *Watcher) Add(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	if !w.config.Recursive {
		return w.fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Close releases the underlying watcher. Run returns once it is closed.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run dispatches stable files until ctx is cancelled. Files are read one at
// a time in the order they became stable.
func (w *Watcher) Run(ctx context.Context) error {
	ready := make(chan string, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range ready {
			if ctx.Err() != nil {
				continue
			}
			w.process(ctx, path)
		}
	}()
	defer func() {
		close(ready)
		wg.Wait()
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(max(w.config.Debounce/4, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, pending)
		case now := <-ticker.C:
			stable := make([]string, 0, len(pending))
			for path, last := range pending {
				if now.Sub(last) >= w.config.Debounce {
					stable = append(stable, path)
				}
			}
			slices.SortFunc(stable, func(a, b string) int { return pending[a].Compare(pending[b]) })
			for _, path := range stable {
				delete(pending, path)
				select {
				case ready <- path:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, pending map[string]time.Time) {
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		delete(pending, ev.Name)
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if ev.Has(fsnotify.Create) && w.config.Recursive {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				slog.Warn("cannot watch new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !batch.ShouldIncludeFile(ev.Name, w.config.IncludePatterns, w.config.ExcludePatterns) {
		return
	}
	pending[ev.Name] = time.Now()
}

func (w *Watcher) process(ctx context.Context, path string) {
	slog.Debug("reading watched file", "file", path)
	r, err := w.reader.ReadFile(ctx, path)
	if err != nil {
		slog.Warn("cannot read watched file", "file", path, "error", err)
		r = &meter.Reading{File: path, Errors: []string{err.Error()}}
	}
	w.handler(path, r, err)
}
