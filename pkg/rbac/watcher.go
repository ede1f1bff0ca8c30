package rbac

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the role registry whenever the roles file changes on
// disk. The parent directory is watched rather than the file itself so
// that editors and config mounts that replace the file atomically still
// produce an event for the new inode.
type Watcher struct {
	engine  *Engine
	path    string
	watcher *fsnotify.Watcher
	log     *logrus.Logger

	mu      sync.Mutex
	reloads int64
	done    chan struct{}
}

// NewWatcher loads the roles file once and then watches it for changes.
func NewWatcher(engine *Engine, path string, log *logrus.Logger) (*Watcher, error) {
	if log == nil {
		log = logrus.New()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving roles file path: %w", err)
	}

	w := &Watcher{
		engine: engine,
		path:   abs,
		log:    log,
		done:   make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	w.watcher = fsw

	go w.run()
	return w, nil
}

// Reloads reports how many reloads have been applied since start.
func (w *Watcher) Reloads() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops watching. The last applied registry stays in effect.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if err := w.reload(); err != nil {
				// A bad edit keeps the previous registry in effect.
				w.log.WithError(err).WithField("path", w.path).Warn("roles file reload rejected")
				continue
			}
			w.log.WithField("path", w.path).Info("roles file reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("roles file watcher error")
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("reading roles file: %w", err)
	}
	if err := w.engine.ImportYAML(data); err != nil {
		return err
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	return nil
}
