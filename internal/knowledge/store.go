// Package knowledge owns the durable knowledge store: a JSON array of
// records rewritten wholesale on each mutation, with an atomic write and
// rolling backup, an embedding index sidecar for semantic dedup, and a
// review mirror for external tooling. All producers (scanner, staging
// approvals, live answers) serialize through one mutex so concurrent
// ingests cannot overwrite each other's records.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mnemos/internal/embedding"
	"mnemos/internal/logging"
	"mnemos/internal/sanitize"
	"mnemos/internal/types"
)

// File layout under the state directory.
const (
	storeFile  = "knowledge.json"
	backupFile = "knowledge.json.bak"
	indexFile  = "embeddings.json"
	reviewDir  = "review"
)

// Store is the single logical owner of knowledge records.
type Store struct {
	mu sync.Mutex

	dir          string
	workspace    string
	engine       embedding.Engine
	dupThreshold float64

	records []types.KnowledgeRecord
	index   *Index
	mirror  *Mirror
}

// Open loads (or creates) the store under dir. A corrupt or truncated
// store file is treated as empty: new knowledge is never thrown away
// because old knowledge was unreadable.
func Open(dir, workspace string, engine embedding.Engine, dupThreshold float64) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory required")
	}
	if engine == nil {
		return nil, fmt.Errorf("embedding engine required")
	}
	if dupThreshold <= 0 || dupThreshold > 1 {
		dupThreshold = 0.9
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		dir:          dir,
		workspace:    workspace,
		engine:       engine,
		dupThreshold: dupThreshold,
		index:        LoadIndex(filepath.Join(dir, indexFile), engine.Dimensions()),
	}

	s.records = loadRecords(filepath.Join(dir, storeFile))
	logging.Store("knowledge store opened: %d records, %d indexed vectors",
		len(s.records), s.index.Len())

	mirror, err := OpenMirror(filepath.Join(dir, reviewDir, "knowledge.db"))
	if err != nil {
		// The mirror is review tooling, not the source of truth.
		logging.Get(logging.CategoryStore).Warn("review mirror unavailable: %v", err)
	} else {
		s.mirror = mirror
	}

	return s, nil
}

// loadRecords reads the store file, tolerating absence and corruption.
func loadRecords(path string) []types.KnowledgeRecord {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var records []types.KnowledgeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		logging.Get(logging.CategoryStore).Warn("corrupt store file %s, treating as empty: %v", path, err)
		return nil
	}
	return records
}

// normalizeQuestion produces the exact-dedup key component.
func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// IngestResult summarizes one ingest call.
type IngestResult struct {
	Added      int
	ExactDups  int
	SemanticDups int
}

// Ingest merges candidates originating from one file. Each candidate is
// exact-deduped on (normalized question, origin file), semantically
// deduped against the embedding index, then sanitized, stamped, and
// appended. The whole array is persisted once at the end.
func (s *Store) Ingest(ctx context.Context, candidates []types.Candidate, originFile, source string) (IngestResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Ingest")
	defer timer.Stop()

	var res IngestResult
	if s == nil {
		return res, fmt.Errorf("knowledge store not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	origin := sanitize.OriginFile(originFile, s.workspace)

	for _, cand := range candidates {
		question := sanitize.Clean(cand.Question)
		answer := sanitize.Clean(cand.Answer)
		if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
			continue
		}

		if s.hasExactLocked(question, origin) {
			res.ExactDups++
			continue
		}

		key := IndexKey(question, answer, origin)
		vec, err := s.engine.Embed(ctx, question+" "+answer)
		if err != nil {
			return res, fmt.Errorf("failed to embed candidate: %w", err)
		}

		if matchKey, sim := s.index.MostSimilar(vec); sim >= s.dupThreshold {
			logging.StoreDebug("semantic duplicate (sim=%.3f of %s), skipping: %.60s",
				sim, matchKey, question)
			res.SemanticDups++
			continue
		}

		record := types.KnowledgeRecord{
			ID:         uuid.New().String(),
			Question:   question,
			Answer:     answer,
			Confidence: cand.Confidence,
			Source:     source,
			OriginFile: origin,
			LearnedAt:  time.Now().UTC(),
			SemanticID: key,
		}

		s.records = append(s.records, record)
		s.index.Add(key, vec)
		res.Added++
	}

	if res.Added == 0 {
		return res, nil
	}
	if err := s.persistLocked(); err != nil {
		return res, err
	}

	logging.Store("ingested %d records from %s (%d exact dups, %d semantic dups)",
		res.Added, origin, res.ExactDups, res.SemanticDups)
	return res, nil
}

func (s *Store) hasExactLocked(question, origin string) bool {
	norm := normalizeQuestion(question)
	for _, r := range s.records {
		if r.OriginFile == origin && normalizeQuestion(r.Question) == norm {
			return true
		}
	}
	return false
}

// FindByQuestion returns the most recent record whose normalized
// question matches, or nil.
func (s *Store) FindByQuestion(question string) *types.KnowledgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := normalizeQuestion(sanitize.Clean(question))
	for i := len(s.records) - 1; i >= 0; i-- {
		if normalizeQuestion(s.records[i].Question) == norm {
			r := s.records[i]
			return &r
		}
	}
	return nil
}

// AttachSafetyReview stores waiver metadata on an existing record.
func (s *Store) AttachSafetyReview(id string, review types.SafetyReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			r := review
			s.records[i].SafetyReview = &r
			return s.persistLocked()
		}
	}
	return fmt.Errorf("record not found: %s", id)
}

// Remove deletes a record and its index vector. Used by the staging
// double-gate when a just-merged record fails the safety re-scan.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.index.Remove(r.SemanticID)
			logging.Store("removed record %s (origin=%s)", id, r.OriginFile)
			return s.persistLocked()
		}
	}
	return fmt.Errorf("record not found: %s", id)
}

// List returns up to limit records, most recent first. limit <= 0 means
// all records.
func (s *Store) List(limit int) []types.KnowledgeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.KnowledgeRecord, len(s.records))
	copy(out, s.records)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the record count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Stats returns store statistics for the CLI.
func (s *Store) Stats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySource := make(map[string]int)
	var confSum float64
	waived := 0
	for _, r := range s.records {
		bySource[r.Source]++
		confSum += r.Confidence
		if r.SafetyReview != nil && r.SafetyReview.Waived {
			waived++
		}
	}

	stats := map[string]interface{}{
		"total_records":   len(s.records),
		"indexed_vectors": s.index.Len(),
		"by_source":       bySource,
		"waived_records":  waived,
		"embedding":       s.engine.Name(),
		"dimensions":      s.engine.Dimensions(),
	}
	if len(s.records) > 0 {
		stats["avg_confidence"] = confSum / float64(len(s.records))
	}
	return stats
}

// Reindex rebuilds every embedding vector from stored text, fanning the
// embedding calls out across workers. Needed after changing the
// embedding engine or its dimensions.
func (s *Store) Reindex(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryStore, "Reindex")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := &Index{
		path:    s.index.path,
		dims:    s.engine.Dimensions(),
		vectors: make(map[string][]float32, len(s.records)),
		dirty:   true,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	vecs := make([][]float32, len(s.records))
	for i := range s.records {
		g.Go(func() error {
			vec, err := s.engine.Embed(gctx, s.records[i].Question+" "+s.records[i].Answer)
			if err != nil {
				return fmt.Errorf("failed to embed record %s: %w", s.records[i].ID, err)
			}
			vecs[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range s.records {
		fresh.vectors[r.SemanticID] = vecs[i]
	}
	s.index = fresh

	logging.Store("reindexed %d records", len(s.records))
	return s.index.Save()
}

// persistLocked writes the whole record array atomically (temp file +
// rename), keeps a rolling backup of the previous contents, refreshes
// the review mirror, and saves the embedding index. Callers hold s.mu.
func (s *Store) persistLocked() error {
	path := filepath.Join(s.dir, storeFile)

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	// Roll the previous file to .bak before replacing it.
	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(filepath.Join(s.dir, backupFile), prev, 0644); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to write backup: %v", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	// Review mirror copies are best-effort.
	reviewPath := filepath.Join(s.dir, reviewDir, storeFile)
	if err := os.MkdirAll(filepath.Dir(reviewPath), 0755); err == nil {
		if err := os.WriteFile(reviewPath, data, 0644); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to write review mirror: %v", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.ReplaceAll(s.records); err != nil {
			logging.Get(logging.CategoryStore).Warn("failed to refresh sqlite mirror: %v", err)
		}
	}

	if err := s.index.Save(); err != nil {
		return err
	}
	return nil
}

// Close flushes the index and closes the mirror.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Save(); err != nil {
		return err
	}
	if s.mirror != nil {
		return s.mirror.Close()
	}
	return nil
}
