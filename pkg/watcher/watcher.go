// Package watcher reruns work when input files change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/fabprep/pkg/progress"
	"github.com/fsnotify/fsnotify"
)

const component = "watcher"

// DefaultDebounce collapses the burst of events an editor or exporter
// produces for a single save.
const DefaultDebounce = 300 * time.Millisecond

// FileWatcher watches files for changes and calls back once per burst.
//
// Parent directories are watched rather than the files themselves, so a
// file replaced by rename keeps being watched.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	files    map[string]bool
	dirs     map[string]bool
	debounce time.Duration
	timers   map[string]*time.Timer
	sink     progress.Sink
}

// New creates a file watcher. A non-positive debounce selects
// DefaultDebounce. sink may be nil.
func New(debounce time.Duration, sink progress.Sink) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileWatcher{
		watcher:  w,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		sink:     progress.OrNop(sink),
	}, nil
}

// Add starts watching files.
func (fw *FileWatcher) Add(files ...string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", file, err)
		}
		dir := filepath.Dir(abs)
		if !fw.dirs[dir] {
			if err := fw.watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
			fw.dirs[dir] = true
		}
		fw.files[abs] = true
	}
	return nil
}

// Run delivers debounced changes to fn until ctx is done or the watcher is
// closed. fn receives the absolute path of the changed file and is never
// called concurrently with itself.
func (fw *FileWatcher) Run(ctx context.Context, fn func(path string)) error {
	changes := make(chan string)
	quit := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	go func() {
		defer calls.Done()
		for {
			select {
			case path := <-changes:
				fn(path)
			case <-quit:
				return
			}
		}
	}()
	defer func() {
		fw.stopTimers()
		close(quit)
		calls.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				fw.handleFileChange(event.Name, changes, quit)
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			progress.Warn(fw.sink, component, "watch error", err)
		}
	}
}

// handleFileChange restarts the debounce timer of a watched file.
func (fw *FileWatcher) handleFileChange(name string, changes chan<- string, quit <-chan struct{}) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.files[abs] {
		return
	}
	if timer, ok := fw.timers[abs]; ok {
		timer.Stop()
	}
	fw.timers[abs] = time.AfterFunc(fw.debounce, func() {
		progress.Note(fw.sink, component, "file changed", slog.String("path", abs))
		select {
		case changes <- abs:
		case <-quit:
		}
	})
}

func (fw *FileWatcher) stopTimers() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for path, timer := range fw.timers {
		timer.Stop()
		delete(fw.timers, path)
	}
}

// Close stops the watcher.
func (fw *FileWatcher) Close() error {
	return fw.watcher.Close()
}
