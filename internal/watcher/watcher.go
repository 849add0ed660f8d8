package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/robertguss/rxflow-go/internal/debounce"
)

// Watcher monitors files for changes and reports each settled burst of
// writes once, after the files have been quiet for the debounce delay
type Watcher struct {
	watcher  *fsnotify.Watcher
	pipe     *debounce.Pipe[string]
	onChange func(path string)
	onError  func(err error)
	logger   *logrus.Entry

	mu      sync.Mutex
	paths   []string
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Watcher
type Option func(*Watcher)

// WithErrorHandler sets the callback for watcher errors
func WithErrorHandler(fn func(err error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// WithLogger sets the watcher logger
func WithLogger(logger *logrus.Entry) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a file watcher. onChange is called from a timer goroutine with
// the last path written during a burst.
func New(delay time.Duration, clock clockwork.Clock, onChange func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		onChange: onChange,
		paths:    make([]string, 0),
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.pipe = debounce.New("", delay, clock, w.deliver)
	return w
}

// AddPath adds a path to watch
func (w *Watcher) AddPath(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)

	if w.watcher != nil && w.running {
		_ = w.watcher.Add(filepath.Dir(path))
	}
}

// Start begins watching for file changes
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory containing each file; editors often replace files
	// rather than writing in place
	for _, path := range w.paths {
		if err := fw.Add(filepath.Dir(path)); err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Cannot watch directory")
		}
	}

	w.watcher = fw
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go w.run(fw, w.stopCh, w.doneCh)
	return nil
}

// Stop stops watching and drops any change still inside the quiet window
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	fw, done := w.watcher, w.doneCh
	w.mu.Unlock()

	err := fw.Close()
	<-done
	w.pipe.Cancel()
	return err
}

// Cancel stops the watcher; it lets a workflow session own the watcher's lifetime
func (w *Watcher) Cancel() {
	if err := w.Stop(); err != nil {
		w.logger.WithError(err).Warn("Failed to stop file watcher")
	}
}

// IsRunning returns whether the watcher is currently active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main event loop
func (w *Watcher) run(fw *fsnotify.Watcher, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !w.isWatchedPath(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.pipe.Set(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watcher error")
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) deliver(path string) {
	if path == "" || w.onChange == nil {
		return
	}
	w.logger.WithField("path", path).Debug("Watched file changed")
	w.onChange(path)
}

// isWatchedPath checks if the given path matches any watched path
func (w *Watcher) isWatchedPath(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	absPath, _ := filepath.Abs(path)
	for _, watchedPath := range w.paths {
		absWatched, _ := filepath.Abs(watchedPath)
		if absPath == absWatched {
			return true
		}
	}
	return false
}
