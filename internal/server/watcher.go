package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 250 * time.Millisecond

// reloadWatcher calls onChange once a burst of writes to the watched files
// has been quiet for the debounce window. A save renames several tables in
// a row, so reacting per event would load half-replaced data.
type reloadWatcher struct {
	dir      string
	files    map[string]struct{}
	debounce time.Duration
	onChange func()
	logger   *logrus.Logger

	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

func newReloadWatcher(dir string, files []string, debounce time.Duration, onChange func(), logger *logrus.Logger) (*reloadWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	set := make(map[string]struct{}, len(files))
	for _, f := range files {
		set[f] = struct{}{}
	}
	return &reloadWatcher{
		dir:      dir,
		files:    set,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  w,
	}, nil
}

func (w *reloadWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	_, ok := w.files[filepath.Base(ev.Name)]
	return ok
}

// Run blocks until ctx is done or the watcher is closed
func (w *reloadWatcher) Run(ctx context.Context) {
	w.logger.WithField("dir", w.dir).Info("watching tables for changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.logger.WithFields(logrus.Fields{"file": ev.Name, "op": ev.Op.String()}).Debug("table changed")
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("watch error")
		case <-timer.C:
			w.onChange()
		}
	}
}

func (w *reloadWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() { err = w.watcher.Close() })
	return err
}
