package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"mnemos/internal/logging"
)

// FileProgress tracks per-file analysis state across scans.
type FileProgress struct {
	Mtime           time.Time `json:"mtime"`
	CompletedPasses []string  `json:"completed_passes"`
	LastRead        time.Time `json:"last_read"`
}

// Ledger is the persistent scan-progress manifest, a JSON map keyed by
// project-relative path. An mtime advance on a file invalidates its
// completed passes so edited files are re-analyzed from the start.
type Ledger struct {
	mu      sync.Mutex
	path    string
	entries map[string]*FileProgress
	dirty   bool
}

// LoadLedger reads the manifest at path, starting fresh when it is
// missing or corrupt.
func LoadLedger(path string) *Ledger {
	l := &Ledger{path: path, entries: make(map[string]*FileProgress)}

	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		logging.Get(logging.CategoryScanner).Warn("corrupt progress ledger %s, starting fresh: %v", path, err)
		l.entries = make(map[string]*FileProgress)
	}
	return l
}

// NextPass returns the first pass in order not yet completed for the
// file, refreshing state first when the mtime has advanced. The second
// return is false when every pass is done.
func (l *Ledger) NextPass(path string, mtime time.Time, passes []string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[path]
	if entry == nil {
		if len(passes) == 0 {
			return "", false
		}
		return passes[0], true
	}

	if mtime.After(entry.Mtime) {
		entry.Mtime = mtime
		entry.CompletedPasses = nil
		l.dirty = true
		logging.Get(logging.CategoryScanner).Debug("mtime advanced for %s, passes reset", path)
	}

	done := make(map[string]bool, len(entry.CompletedPasses))
	for _, p := range entry.CompletedPasses {
		done[p] = true
	}
	for _, p := range passes {
		if !done[p] {
			return p, true
		}
	}
	return "", false
}

// MarkDone records a completed pass for the file.
func (l *Ledger) MarkDone(path string, mtime time.Time, pass string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[path]
	if entry == nil {
		entry = &FileProgress{Mtime: mtime}
		l.entries[path] = entry
	}
	for _, p := range entry.CompletedPasses {
		if p == pass {
			entry.LastRead = time.Now().UTC()
			l.dirty = true
			return
		}
	}
	entry.CompletedPasses = append(entry.CompletedPasses, pass)
	entry.LastRead = time.Now().UTC()
	if mtime.After(entry.Mtime) {
		entry.Mtime = mtime
	}
	l.dirty = true
}

// Len returns the number of tracked files.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Save writes the manifest atomically if anything changed.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return nil
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal progress ledger: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write progress ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace progress ledger: %w", err)
	}
	l.dirty = false
	return nil
}
