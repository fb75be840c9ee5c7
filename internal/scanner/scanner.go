// Package scanner runs the rate-limited background learning loop: walk
// the sandboxed workspace, pick the next file with an outstanding
// analysis pass, extract candidates (generator-backed with a heuristic
// fallback), and hand them to the decision engine. Progress persists
// across restarts in a JSON manifest so long workspaces are worked
// through incrementally.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mnemos/internal/config"
	"mnemos/internal/decision"
	"mnemos/internal/extract"
	"mnemos/internal/generator"
	"mnemos/internal/logging"
	"mnemos/internal/types"
)

const progressFile = "progress.json"

// Scanner drives the background learning loop.
type Scanner struct {
	cfg        config.ScannerConfig
	genTimeout time.Duration

	walkers []*Walker
	bucket  *TokenBucket
	ledger  *Ledger
	gen     generator.Generator
	engine  *decision.Engine

	mu      sync.Mutex
	paused  bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	watcher *watcher
}

// New builds a scanner over the workspace. stateDir holds the progress
// manifest; gen may be nil, in which case extraction is heuristic-only.
func New(workspace, stateDir string, cfg config.ScannerConfig, genTimeout time.Duration, gen generator.Generator, engine *decision.Engine) (*Scanner, error) {
	if engine == nil {
		return nil, fmt.Errorf("scanner requires a decision engine")
	}

	paths := cfg.WatchPaths
	if len(paths) == 0 {
		paths = []string{"."}
	}

	var walkers []*Walker
	for _, p := range paths {
		root := p
		if !filepath.IsAbs(root) {
			root = filepath.Join(workspace, root)
		}
		w, err := NewWalker(root, cfg.DeepMode)
		if err != nil {
			return nil, fmt.Errorf("failed to set up walker for %s: %w", p, err)
		}
		walkers = append(walkers, w)
	}

	return &Scanner{
		cfg:        cfg,
		genTimeout: genTimeout,
		walkers:    walkers,
		bucket:     NewTokenBucket(cfg.RatePerMinute),
		ledger:     LoadLedger(filepath.Join(stateDir, progressFile)),
		gen:        gen,
		engine:     engine,
	}, nil
}

// passes returns the pass list for the configured mode.
func (s *Scanner) passes() []string {
	if s.cfg.DeepMode {
		return extract.DeepPasses
	}
	return []string{extract.PassBasic}
}

// Start launches the scan loop. Returns an error if already running.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scanner already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	if s.cfg.WatchMode {
		w, err := newWatcher(s.walkers)
		if err != nil {
			logging.Get(logging.CategoryScanner).Warn("watch mode unavailable: %v", err)
		} else {
			s.watcher = w
			s.watcher.start(loopCtx)
		}
	}

	go s.loop(loopCtx)
	logging.Scanner("scanner started: %d roots, %.1f files/min, deep=%v",
		len(s.walkers), s.cfg.RatePerMinute, s.cfg.DeepMode)
	return nil
}

// Stop cancels the loop, waits for it to drain, and flushes progress.
func (s *Scanner) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done

	if s.watcher != nil {
		s.watcher.close()
	}
	logging.Scanner("scanner stopped")
	return s.ledger.Save()
}

// Pause suspends processing without losing bucket or progress state.
func (s *Scanner) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	logging.Scanner("scanner paused")
}

// Resume reverses Pause.
func (s *Scanner) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	logging.Scanner("scanner resumed")
}

// SetRate retunes the token bucket while running.
func (s *Scanner) SetRate(ratePerMinute float64) {
	s.bucket.SetRate(ratePerMinute)
}

func (s *Scanner) loop(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(s.cfg.IntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			paused := s.paused
			s.mu.Unlock()
			if paused {
				continue
			}

			if n, err := s.tick(ctx, s.bucket.Take); err != nil && ctx.Err() == nil {
				logging.Get(logging.CategoryScanner).Warn("scan tick failed after %d passes: %v", n, err)
			}
			if err := s.ledger.Save(); err != nil {
				logging.Get(logging.CategoryScanner).Warn("failed to save progress: %v", err)
			}
		}
	}
}

// RunTicks processes up to max file passes synchronously, stopping
// early when the workspace has no pending work. Used by the foreground
// scan command; the token bucket is bypassed on purpose.
func (s *Scanner) RunTicks(ctx context.Context, max int) (int, error) {
	processed := 0
	for processed < max {
		budget := max - processed
		take := func() bool {
			if budget == 0 {
				return false
			}
			budget--
			return true
		}

		n, err := s.tick(ctx, take)
		processed += n
		if saveErr := s.ledger.Save(); saveErr != nil && err == nil {
			err = saveErr
		}
		if err != nil {
			return processed, err
		}
		// A walk that found nothing means no passes are pending; a walk
		// serves each file at most once, so multi-pass files need
		// another round.
		if n == 0 {
			break
		}
	}
	return processed, nil
}

// tick walks the roots and processes pending file passes, consuming one
// token per eligible file via take, until the walk completes or take
// refuses. Files touched by the watcher are served before the regular
// walk order. Ineligible files cost nothing; a tick over an idle
// workspace leaves the bucket untouched.
func (s *Scanner) tick(ctx context.Context, take func() bool) (int, error) {
	processed := 0
	for _, w := range s.walkers {
		if s.watcher != nil {
			for _, rel := range s.watcher.drain(w) {
				worked, stop, err := s.tryFile(ctx, w, rel, take)
				if worked {
					processed++
				}
				if err != nil || stop {
					return processed, err
				}
			}
		}

		files, err := w.Walk(ctx)
		if err != nil {
			return processed, err
		}
		for _, rel := range files {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			worked, stop, err := s.tryFile(ctx, w, rel, take)
			if worked {
				processed++
			}
			if err != nil || stop {
				return processed, err
			}
		}
	}
	return processed, nil
}

// tryFile runs the next outstanding pass for one file, consuming one
// token first. stop is true when take refused, meaning the caller
// should end the walk with the file untouched for a later tick.
func (s *Scanner) tryFile(ctx context.Context, w *Walker, rel string, take func() bool) (worked, stop bool, err error) {
	info, err := os.Stat(filepath.Join(w.Root(), rel))
	if err != nil {
		return false, false, nil
	}

	// Full resolved root in the key: two watch roots sharing a basename
	// must not share pass progress.
	key := filepath.ToSlash(filepath.Join(w.Root(), rel))
	pass, pending := s.ledger.NextPass(key, info.ModTime(), s.passes())
	if !pending {
		return false, false, nil
	}

	if !take() {
		return false, true, nil
	}

	if err := s.processFile(ctx, w, rel, pass); err != nil {
		if ctx.Err() != nil {
			return true, true, ctx.Err()
		}
		// One bad file must not stall the walk. The pass is not marked
		// done, so the file is retried on a later tick.
		logging.Get(logging.CategoryScanner).Warn("failed to process %s (pass=%s): %v", rel, pass, err)
		return true, false, nil
	}
	s.ledger.MarkDone(key, info.ModTime(), pass)
	return true, false, nil
}

// processFile extracts candidates from one file for one pass and routes
// them through the decision engine.
func (s *Scanner) processFile(ctx context.Context, w *Walker, rel, pass string) error {
	timer := logging.StartTimer(logging.CategoryScanner, "processFile")
	defer timer.StopWithThreshold(10 * time.Second)

	maxBytes := s.cfg.MaxReadBytes
	if s.cfg.DeepMode {
		maxBytes = 0
	}
	data, err := w.ReadFile(rel, maxBytes)
	if err != nil {
		return err
	}
	content := string(data)

	candidates, source := s.extractCandidates(ctx, rel, pass, content)
	if len(candidates) == 0 {
		logging.Get(logging.CategoryScanner).Debug("no candidates from %s (pass=%s)", rel, pass)
		return nil
	}

	counts, err := s.engine.DecideAll(ctx, candidates, rel, source)
	if err != nil {
		return err
	}
	logging.Scanner("processed %s pass=%s: %d candidates, outcomes=%v",
		rel, pass, len(candidates), counts)
	return nil
}

// extractCandidates prefers the generator and degrades to the heuristic
// when no backend is reachable.
func (s *Scanner) extractCandidates(ctx context.Context, rel, pass, content string) ([]types.Candidate, string) {
	if s.gen == nil || !s.gen.IsAvailable(ctx) {
		return extract.Heuristic(content), "heuristic"
	}

	prompt := extract.PromptForPass(pass, rel, content)
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()

	text, err := s.gen.Generate(genCtx, prompt, generator.Options{Temperature: 0.2})
	if err != nil {
		logging.Get(logging.CategoryScanner).Warn("generator failed for %s, using heuristic: %v", rel, err)
		return extract.Heuristic(content), "heuristic"
	}
	return extract.ParseGenerated(text, content), "deep-learning"
}
