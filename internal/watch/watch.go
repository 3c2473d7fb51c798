// Package watch refreshes a provider silently when its session logs
// change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/janekbaraniewski/openpulse/internal/core"
)

const DefaultDebounce = 2 * time.Second

// Refresher runs a silent single-provider refresh. It reports false when
// the refresh was skipped.
type Refresher interface {
	RefreshProvider(ctx context.Context, provider core.ProviderID) bool
}

type root struct {
	dir      string
	provider core.ProviderID
}

// Watcher watches log directory trees and coalesces bursts of writes into
// one refresh per provider.
type Watcher struct {
	refresher Refresher
	debounce  time.Duration
	suffix    string
	logger    *zap.Logger

	roots []root

	mu     sync.Mutex
	timers map[core.ProviderID]*time.Timer
}

func New(refresher Refresher, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		refresher: refresher,
		debounce:  debounce,
		suffix:    ".jsonl",
		logger:    logger,
		timers:    make(map[core.ProviderID]*time.Timer),
	}
}

// Add registers dirs as provider's log roots. Call before Run.
func (w *Watcher) Add(provider core.ProviderID, dirs ...string) {
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			w.roots = append(w.roots, root{dir: filepath.Clean(d), provider: provider})
		}
	}
}

// Run watches until ctx is done. Roots that do not exist yet are skipped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := 0
	for _, r := range w.roots {
		n, err := addTree(fw, r.dir)
		if err != nil {
			w.logger.Debug("not watching log root", zap.String("dir", r.dir), zap.Error(err))
		}
		watched += n
	}
	w.logger.Debug("watching log directories", zap.Int("dirs", watched))

	due := make(chan core.ProviderID, len(w.roots)+1)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, ev, due)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case id := <-due:
			if !w.refresher.RefreshProvider(ctx, id) {
				w.logger.Debug("log-triggered refresh skipped", zap.String("provider", string(id)))
			}
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, due chan<- core.ProviderID) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if _, err := addTree(fw, ev.Name); err != nil {
				w.logger.Debug("watching new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !strings.HasSuffix(ev.Name, w.suffix) {
		return
	}
	if id, ok := w.providerFor(ev.Name); ok {
		w.schedule(id, due)
	}
}

// providerFor picks the provider with the longest matching root.
func (w *Watcher) providerFor(path string) (core.ProviderID, bool) {
	var best root
	for _, r := range w.roots {
		if (path == r.dir || strings.HasPrefix(path, r.dir+string(filepath.Separator))) && len(r.dir) > len(best.dir) {
			best = r
		}
	}
	return best.provider, best.dir != ""
}

func (w *Watcher) schedule(id core.ProviderID, due chan<- core.ProviderID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		select {
		case due <- id:
		default:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func addTree(fw *fsnotify.Watcher, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			if path == dir {
				return err
			}
			return filepath.SkipDir
		}
		n++
		return nil
	})
	return n, err
}
