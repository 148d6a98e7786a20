// Package watcher emits debounced file events for a local training-data
// directory. It backs the `files sync` command, which mirrors new and
// changed JSONL files into a project.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType classifies a file change.
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventRemove
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventRemove:
		return "remove"
	}
	return "unknown"
}

// FileEvent is one debounced change to a watched file.
type FileEvent struct {
	Type EventType
	Path string
}

// DefaultDebounce coalesces rapid write bursts (editors, partial writes)
// into a single event.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a single directory, non-recursively, for JSONL changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	match    func(path string) bool

	fs     *fsnotify.Watcher
	events chan FileEvent

	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	typ   EventType
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithMatcher overrides the file filter. The default accepts .jsonl files.
func WithMatcher(match func(path string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// New creates a watcher for dir. Run must be called to start delivery.
func New(dir string, opts ...Option) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		match: func(path string) bool {
			return strings.EqualFold(filepath.Ext(path), ".jsonl")
		},
		fs:      fs,
		events:  make(chan FileEvent, 64),
		pending: make(map[string]*pendingEvent),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Events returns the debounced event stream.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Run delivers events until ctx is cancelled or the underlying watcher
// fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.flushPending()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.match(ev.Name) {
		return
	}

	var typ EventType
	switch {
	case ev.Op.Has(fsnotify.Create):
		typ = EventCreate
	case ev.Op.Has(fsnotify.Write):
		typ = EventModify
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		typ = EventRemove
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[ev.Name]; ok {
		// A create followed by writes is still a create.
		if p.typ != EventCreate || typ == EventRemove {
			p.typ = typ
		}
		p.timer.Reset(w.debounce)
		return
	}

	p := &pendingEvent{typ: typ}
	p.timer = time.AfterFunc(w.debounce, func() {
		w.fire(ev.Name)
	})
	w.pending[ev.Name] = p
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	typ := p.typ
	w.mu.Unlock()

	select {
	case w.events <- FileEvent{Type: typ, Path: path}:
	default:
		// Consumer is behind; dropping is safer than blocking the
		// notification loop.
	}
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}
