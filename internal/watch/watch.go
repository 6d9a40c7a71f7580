// Package watch renders audio files as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/satindergrewal/musicviz/internal/pipeline"
)

// DefaultSettle is how long a file must go unmodified before it is handled.
const DefaultSettle = 2 * time.Second

const queueSize = 100

// Handler processes one settled file. Calls are sequential.
type Handler func(ctx context.Context, path string)

// Watcher queues new audio files in Dir once they stop changing and hands
// them to Handle one at a time.
type Watcher struct {
	Dir    string
	Exts   []string
	Settle time.Duration
	Handle Handler
	Log    logrus.FieldLogger

	fw     *fsnotify.Watcher
	queue  chan string
	mu     sync.Mutex
	timers map[string]*pending
	wg     sync.WaitGroup
}

// pending is a file's settle timer. A fired timer whose entry has since been
// replaced does nothing.
type pending struct {
	t *time.Timer
}

// Start begins watching. Files created after Start returns are picked up.
func (w *Watcher) Start(ctx context.Context) error {
	if w.Log == nil {
		w.Log = logrus.StandardLogger()
	}
	if w.Settle <= 0 {
		w.Settle = DefaultSettle
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(w.Dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	w.fw = fw
	w.queue = make(chan string, queueSize)
	w.timers = make(map[string]*pending)

	w.wg.Add(2)
	go w.watchDirectory(ctx)
	go w.processQueue(ctx)
	w.Log.Infof("Watching %s for new audio files", w.Dir)
	return nil
}

// Wait blocks until the watcher has stopped after its context ended.
func (w *Watcher) Wait() error {
	w.wg.Wait()
	return w.fw.Close()
}

// Run starts the watcher and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	return w.Wait()
}

func (w *Watcher) watchDirectory(ctx context.Context) {
	defer w.wg.Done()
	defer w.stopTimers()

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.Log.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !pipeline.HasExt(name, w.Exts) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if p, ok := w.timers[ev.Name]; ok {
			if p.t.Reset(w.Settle) {
				return
			}
			// Already fired: its callback may be waiting on mu.
			p.t.Stop()
		}
		path := ev.Name
		p := &pending{}
		p.t = time.AfterFunc(w.Settle, func() { w.enqueue(ctx, path, p) })
		w.timers[path] = p
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if p, ok := w.timers[ev.Name]; ok {
			p.t.Stop()
			delete(w.timers, ev.Name)
		}
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string, p *pending) {
	w.mu.Lock()
	if w.timers[path] != p {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.mu.Unlock()

	select {
	case w.queue <- path:
		w.Log.WithField("file", filepath.Base(path)).Debug("Queued")
	case <-ctx.Done():
	}
}

func (w *Watcher) processQueue(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case path := <-w.queue:
			w.Handle(ctx, path)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.timers {
		p.t.Stop()
		delete(w.timers, path)
	}
}
