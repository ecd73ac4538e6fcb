package config

import (
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/talos/engine/core"
)

/** @brief Emitted whenever a watched profile file changes on disk. */
type ReloadEvent struct {
	Path string
	At   time.Time
}

/**
 * @brief Watches descriptor sizing profiles for changes so a caller can
 * rebuild its pools with fresh budgets. The watcher only surfaces events;
 * deciding when it is safe to tear down and rebuild a pool stays with the
 * consumer.
 */
type Watcher struct {
	fsnotify *fsnotify.Watcher
	events   chan ReloadEvent
	errors   chan error
	done     chan struct{}
	isClosed bool
}

func NewWatcher() (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsnotify: fsWatch,
		events:   make(chan ReloadEvent),
		errors:   make(chan error),
		done:     make(chan struct{}),
	}
	go w.start()
	return w, nil
}

// Add starts watching the named profile file.
func (w *Watcher) Add(path string) error {
	if w.isClosed {
		return errors.New("watcher instance already closed")
	}
	return w.fsnotify.Add(path)
}

// Remove stops watching the named profile file.
func (w *Watcher) Remove(path string) error {
	if w.isClosed {
		return errors.New("watcher instance already closed")
	}
	return w.fsnotify.Remove(path)
}

func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

func (w *Watcher) Errors() <-chan error {
	return w.errors
}

func (w *Watcher) Close() {
	if w.isClosed {
		return
	}
	w.isClosed = true
	close(w.done)
}

func (w *Watcher) start() {
	for {
		select {
		case e := <-w.fsnotify.Events:
			// Editors replace files as often as they write them in place.
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.events <- ReloadEvent{Path: e.Name, At: time.Now()}
			}

		case e := <-w.fsnotify.Errors:
			core.LogError(e.Error())
			w.errors <- e

		case <-w.done:
			w.fsnotify.Close()
			close(w.events)
			close(w.errors)
			return
		}
	}
}
