// Package watch keeps an index synchronized with a directory tree using
// filesystem notifications and debounced batch updates.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"lodestone/internal/index"
	"lodestone/internal/walker"
)

// ErrEventChannelClosed is returned from the run loop when the underlying
// notification channel closes unexpectedly.
var ErrEventChannelClosed = errors.New("watch: event channel closed")

// State names the watcher's lifecycle phase. Transitions are
// Idle -> Accumulating on the first buffered event, Accumulating -> Flushing
// once the debounce window expires, Flushing -> Idle after the batch is
// applied, and any state -> Stopped on Stop.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateFlushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// DefaultDebounce is how long the watcher waits after the last buffered
	// event before flushing a batch. Editors write files several times in
	// quick succession; one re-index covers all of them.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultPollInterval is how often the run loop checks whether the
	// debounce window has expired.
	DefaultPollInterval = 100 * time.Millisecond
)

// changeKind classifies a buffered path for the next flush.
type changeKind int

const (
	changeUpdate changeKind = iota
	changeRemove
)

// Config holds watcher configuration.
type Config struct {
	Indexer      *index.Indexer
	Logger       *zap.Logger
	Debounce     time.Duration
	PollInterval time.Duration
	SkipPatterns []string
}

// Watcher mirrors filesystem changes into the index. Events are buffered per
// path and flushed as a batch once the tree has been quiet for the debounce
// window. Within a batch, removals are applied before updates.
type Watcher struct {
	indexer      *index.Indexer
	logger       *zap.Logger
	debounce     time.Duration
	pollInterval time.Duration
	skip         []string

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	pending   map[string]changeKind
	lastEvent time.Time
	stopOnce  sync.Once
	runErr    error
}

// New creates a watcher over the given indexer. The indexer's language
// registry decides which files are worth buffering.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	skip := cfg.SkipPatterns
	if skip == nil {
		skip = index.DefaultSkipPatterns
	}
	return &Watcher{
		indexer:      cfg.Indexer,
		logger:       logger,
		debounce:     debounce,
		pollInterval: poll,
		skip:         skip,
		fsw:          fsw,
		done:         make(chan struct{}),
		state:        StateIdle,
		pending:      make(map[string]changeKind),
	}, nil
}

// State returns the current lifecycle phase.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns the terminal error of the run loop, if any. Valid after Done
// is closed.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runErr
}

// Done is closed when the run loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.done }

// Watch registers root and all non-skipped subdirectories and starts the run
// loop. Directories created later are registered as their create events
// arrive.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx, absRoot)
	return nil
}

// Stop shuts the watcher down. Safe to call multiple times; pending buffered
// events are discarded.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify watcher", zap.Error(err))
		}
	})
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir {
			rel, _ := filepath.Rel(dir, path)
			if strings.HasPrefix(name, ".") || walker.Matches(name, filepath.ToSlash(rel), w.skip) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// run is the event loop. It buffers events, ticks the debounce clock, and
// flushes batches through the indexer.
func (w *Watcher) run(ctx context.Context, root string) {
	defer close(w.done)
	defer w.setState(StateStopped)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				// Closed by Stop is a clean exit; otherwise report it.
				select {
				case <-ctx.Done():
				default:
					w.setErr(ErrEventChannelClosed)
				}
				return
			}
			w.handleEvent(event, root)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			w.maybeFlush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, root string) {
	path := filepath.Clean(event.Name)

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.buffer(path, changeRemove)
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return // chmod and friends
	}

	info, err := os.Stat(path)
	if err != nil {
		// Gone already; the remove event will follow or has been coalesced.
		return
	}
	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", path), zap.Error(err))
			}
		}
		return
	}

	name := filepath.Base(path)
	rel, _ := filepath.Rel(root, path)
	if strings.HasPrefix(name, ".") || walker.Matches(name, filepath.ToSlash(rel), w.skip) {
		return
	}
	if _, ok := w.indexer.Registry().DetectLanguage(path); !ok {
		return
	}
	w.buffer(path, changeUpdate)
}

// buffer records a pending change. A later event for the same path replaces
// the earlier kind; "written then deleted" within one window is a removal.
func (w *Watcher) buffer(path string, kind changeKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped {
		return
	}
	w.pending[path] = kind
	w.lastEvent = time.Now()
	if w.state == StateIdle {
		w.state = StateAccumulating
	}
}

// maybeFlush applies the buffered batch once the debounce window has passed
// with no new events.
func (w *Watcher) maybeFlush(ctx context.Context) {
	w.mu.Lock()
	if w.state != StateAccumulating || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.state = StateFlushing
	batch := w.pending
	w.pending = make(map[string]changeKind)
	w.mu.Unlock()

	w.flush(ctx, batch)

	w.mu.Lock()
	if w.state == StateFlushing {
		if len(w.pending) > 0 {
			w.state = StateAccumulating
		} else {
			w.state = StateIdle
		}
	}
	w.mu.Unlock()
}

// flush applies one batch: removals first so a rename never leaves both the
// old and new path indexed, then updates gated on the mtime check. Per-path
// failures are logged and the rest of the batch proceeds.
func (w *Watcher) flush(ctx context.Context, batch map[string]changeKind) {
	var removals, updates []string
	for path, kind := range batch {
		if kind == changeRemove {
			removals = append(removals, path)
		} else {
			updates = append(updates, path)
		}
	}

	for _, path := range removals {
		if err := w.indexer.RemoveFile(path); err != nil {
			w.logger.Warn("remove from index", zap.String("path", path), zap.Error(err))
		} else {
			w.logger.Debug("removed from index", zap.String("path", path))
		}
	}

	for _, path := range updates {
		if _, err := os.Stat(path); err != nil {
			continue // deleted between buffering and flush
		}
		if !w.indexer.ShouldIndexFile(path) {
			continue
		}
		if err := w.indexer.UpdateFile(ctx, path); err != nil {
			w.logger.Warn("re-index", zap.String("path", path), zap.Error(err))
		} else {
			w.logger.Debug("re-indexed", zap.String("path", path))
		}
	}
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Watcher) setErr(err error) {
	w.mu.Lock()
	w.runErr = err
	w.mu.Unlock()
}
