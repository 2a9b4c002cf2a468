package meter

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrNoFiles is returned when ReadFiles is called without paths.
var ErrNoFiles = errors.New("no files provided")

// ParallelConfig controls ReadFiles.
type ParallelConfig struct {
	MaxWorkers       int              // Number of parallel workers (0 = runtime.NumCPU())
	ContinueOnError  bool             // Keep going after a file fails to load
	ProgressCallback ProgressCallback // Optional progress reporting
}

// DefaultParallelConfig returns the defaults used by batch runs.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		MaxWorkers:      runtime.NumCPU(),
		ContinueOnError: true,
	}
}

type fileJob struct {
	index int
	path  string
}

type fileResult struct {
	index   int
	reading *Reading
	err     error
}

// FileError pairs a failed path with its load error.
type FileError struct {
	Index int
	Path  string
	Err   error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// ReadFiles reads paths on a worker pool and returns readings in input
// order. A file that cannot be loaded gets a Reading carrying the error.
// Without ContinueOnError the first failure cancels the remaining work and
// is returned as a *FileError.
func (r *Reader) ReadFiles(ctx context.Context, paths []string, config ParallelConfig) ([]*Reading, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	progress := config.ProgressCallback
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress.OnStart(len(paths))
	defer progress.OnComplete()

	jobs := make(chan fileJob, len(paths))
	results := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	for range min(config.MaxWorkers, len(paths)) {
		wg.Add(1)
		go r.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, p := range paths {
			select {
			case jobs <- fileJob{index: i, path: p}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Reading, len(paths))
	var firstErr *FileError
	processed := 0
	for res := range results {
		processed++
		ordered[res.index] = res.reading
		if res.err != nil {
			progress.OnError(res.index, res.err)
			if firstErr == nil || res.index < firstErr.Index {
				firstErr = &FileError{Index: res.index, Path: paths[res.index], Err: res.err}
			}
			if !config.ContinueOnError {
				cancel()
			}
		}
		progress.OnProgress(processed, len(paths))
	}

	if firstErr != nil && !config.ContinueOnError {
		return ordered, firstErr
	}
	if err := ctx.Err(); err != nil && firstErr == nil {
		return ordered, err
	}
	return ordered, nil
}

func (r *Reader) worker(ctx context.Context, jobs <-chan fileJob, results chan<- fileResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			reading, err := r.ReadFile(ctx, job.path)
			if err != nil {
				reading = &Reading{File: job.path, Errors: []string{err.Error()}}
			}
			select {
			case results <- fileResult{index: job.index, reading: reading, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
