package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"mnemos/internal/logging"
)

// watcher marks files dirty between ticks so edits are re-analyzed
// ahead of the regular walk order. fsnotify watches are per-directory,
// so every non-excluded directory under each root is registered and new
// directories are added as they appear.
type watcher struct {
	fsw *fsnotify.Watcher

	mu    sync.Mutex
	dirty map[string]map[string]bool // walker root -> relative path set
}

func newWatcher(walkers []*Walker) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{
		fsw:   fsw,
		dirty: make(map[string]map[string]bool),
	}

	for _, wk := range walkers {
		w.dirty[wk.Root()] = make(map[string]bool)
		if err := w.watchTree(wk.Root()); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && excludedDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *watcher) start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				w.handle(ev)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				logging.Get(logging.CategoryScanner).Warn("watch error: %v", err)
			}
		}
	}()
}

func (w *watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New directories need their own watch.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !excludedDirs[filepath.Base(ev.Name)] {
				_ = w.fsw.Add(ev.Name)
			}
			return
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for root, set := range w.dirty {
		if strings.HasPrefix(ev.Name, root+string(filepath.Separator)) {
			if rel, err := filepath.Rel(root, ev.Name); err == nil {
				set[rel] = true
			}
		}
	}
}

// drain returns and clears the dirty set for one walker.
func (w *watcher) drain(wk *Walker) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	set := w.dirty[wk.Root()]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for rel := range set {
		out = append(out, rel)
		delete(set, rel)
	}
	return out
}

func (w *watcher) close() {
	w.fsw.Close()
}
