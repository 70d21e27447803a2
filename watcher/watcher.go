// Copyright 2017, Kerby Shedden and the Muscato contributors.

// Package watcher wraps fsnotify to run a single source goroutine
// that watches one directory and invokes a callback with each
// filesystem event plus a reference to the worker pool the callback
// should submit work to, decoupling the event source from its
// consumers per spec.md §9's "raw thread + callback glue" design note.
package watcher

import (
	"fmt"
	"log"

	"github.com/fsnotify/fsnotify"
	"github.com/will-rowe/bigsi/worker"
)

// Callback is invoked once per filesystem event with the event itself
// and the pool the handler should submit work to.
type Callback func(event fsnotify.Event, pool *worker.Pool)

// Watcher owns the native fsnotify monitor loop and its goroutine.
type Watcher struct {
	fs     *fsnotify.Watcher
	pool   *worker.Pool
	logger *log.Logger
	done   chan struct{}
}

// Start opens dir for watching and begins calling cb, on the watcher's
// own goroutine, with each event and the worker pool. The watcher runs
// until Stop is called. Internal
// fsnotify errors are written to logger rather than surfaced to cb,
// since they describe the watch itself, not a file event.
func Start(dir string, pool *worker.Pool, logger *log.Logger, cb Callback) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watcher: add %s: %w", dir, err)
	}

	w := &Watcher{fs: fs, pool: pool, logger: logger, done: make(chan struct{})}
	go w.loop(cb)
	return w, nil
}

func (w *Watcher) loop(cb Callback) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			cb(event, w.pool)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Printf("watcher error: %v", err)
			}
		}
	}
}

// Stop closes the underlying fsnotify watcher and blocks until its
// goroutine has exited (joined), per spec.md §4.5's "watcher stopped,
// its thread joined" shutdown step.
func (w *Watcher) Stop() error {
	if err := w.fs.Close(); err != nil {
		return fmt.Errorf("watcher: close: %w", err)
	}
	<-w.done
	return nil
}
