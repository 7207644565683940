package routefabric

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	writeSettleDelay = 200 * time.Millisecond
	debounceWindow   = 250 * time.Millisecond
)

// Watcher observes the artifacts directory and rebuilds+swaps the Fabric's
// current router on add/change/remove, coalescing bursts of events into one
// rebuild (spec.md §4.7 Watch).
type Watcher struct {
	fabric  *Fabric
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(fabric *Fabric) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{fabric: fabric, watcher: fw, ctx: ctx, cancel: cancel}, nil
}

// Start performs the initial build, swaps it in, then begins watching the
// artifacts directory for subsequent changes.
func (w *Watcher) Start(modelsDir string) error {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(modelsDir); err != nil {
		return err
	}

	router, err := w.fabric.Build()
	if err != nil {
		return err
	}
	w.fabric.current.Store(router)

	w.wg.Add(1)
	go w.eventLoop()
	return nil
}

// Stop cancels the debounce timer and closes the fsnotify watcher,
// awaiting the event loop's exit.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleRebuild()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("routefabric watcher error: %v", err)
		}
	}
}

// scheduleRebuild resets a single debounce timer so a burst of events (e.g.
// a publish's artifact write followed immediately by a rename) triggers
// exactly one rebuild, started only after the write-settle delay.
func (w *Watcher) scheduleRebuild() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(writeSettleDelay+debounceWindow, w.rebuild)
}

// rebuild builds a fresh router from scratch and swaps it in atomically. A
// build failure (malformed artifact) retains the previous router — a
// partially-built router is never published.
func (w *Watcher) rebuild() {
	router, err := w.fabric.Build()
	if err != nil {
		log.Printf("routefabric rebuild failed, retaining previous router: %v", err)
		return
	}
	w.fabric.current.Store(router)
}
