package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mnemos/internal/embedding"
	"mnemos/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), ".mnemos"), "", embedding.NewLocalEngine(128), 0.9)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIngestAndPersist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.Ingest(ctx, []types.Candidate{
		{Question: "How is the ledger persisted?", Answer: "As a JSON manifest keyed by path.", Confidence: 0.9},
	}, "src/ledger.go", "deep-learning")
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if res.Added != 1 {
		t.Fatalf("added = %d, want 1", res.Added)
	}

	records := s.List(0)
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	r := records[0]
	if r.ID == "" || r.SemanticID == "" {
		t.Fatalf("missing identifiers: %+v", r)
	}
	if r.Source != "deep-learning" {
		t.Fatalf("source = %q", r.Source)
	}
	if filepath.IsAbs(r.OriginFile) {
		t.Fatalf("origin file is absolute: %q", r.OriginFile)
	}
}

func TestIngestIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cand := []types.Candidate{
		{Question: "What resets completed passes?", Answer: "An mtime advance on the file.", Confidence: 0.95},
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Ingest(ctx, cand, "scanner.go", "assistant"); err != nil {
			t.Fatalf("Ingest #%d error = %v", i, err)
		}
	}

	if n := s.Len(); n != 1 {
		t.Fatalf("store size = %d after re-ingest, want 1", n)
	}
}

func TestSemanticDedupBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := types.Candidate{
		Question:   "How does the token bucket refill over time?",
		Answer:     "Proportional to elapsed wall clock seconds times capacity over sixty.",
		Confidence: 0.9,
	}
	if _, err := s.Ingest(ctx, []types.Candidate{base}, "a.go", "assistant"); err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	// Same text from a different origin: exact dedup misses (different
	// origin) but the semantic check collapses it.
	res, err := s.Ingest(ctx, []types.Candidate{base}, "b.go", "assistant")
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if res.Added != 0 || res.SemanticDups != 1 {
		t.Fatalf("result = %+v, want semantic dup", res)
	}

	// Genuinely different text is admitted.
	other := types.Candidate{
		Question:   "Which directories does the walker always exclude?",
		Answer:     "Version control internals and dependency caches such as node_modules.",
		Confidence: 0.9,
	}
	res, err = s.Ingest(ctx, []types.Candidate{other}, "c.go", "assistant")
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if res.Added != 1 {
		t.Fatalf("result = %+v, want 1 added", res)
	}
}

func TestCorruptStoreRecovery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".mnemos")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "knowledge.json"), []byte(`{"truncated": [`), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir, "", embedding.NewLocalEngine(128), 0.9)
	if err != nil {
		t.Fatalf("Open() on corrupt store error = %v", err)
	}
	defer s.Close()

	res, err := s.Ingest(context.Background(), []types.Candidate{
		{Question: "Does corruption lose new data?", Answer: "No, the store reloads as empty and continues.", Confidence: 0.9},
	}, "doc.md", "assistant")
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	if res.Added != 1 || s.Len() != 1 {
		t.Fatalf("store size = %d (res %+v), want exactly the new record", s.Len(), res)
	}
}

func TestIngestSanitizes(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Ingest(context.Background(), []types.Candidate{
		{
			Question:   "Who maintains the deploy script at C:\\Users\\carol\\deploy.ps1?",
			Answer:     "Ask carol.smith@corp.example for access.",
			Confidence: 0.9,
		},
	}, "/abs/host/path/notes.md", "assistant")
	if err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	r := s.List(1)[0]
	if strings.Contains(r.Question, "carol") || strings.Contains(r.Answer, "@") {
		t.Fatalf("sanitization leaked: %+v", r)
	}
	if strings.Contains(r.OriginFile, "/abs/") {
		t.Fatalf("origin file kept absolute path: %q", r.OriginFile)
	}
}

func TestRemoveDropsIndexVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Ingest(ctx, []types.Candidate{
		{Question: "What gate runs after approval?", Answer: "A second threat scan over the merged text.", Confidence: 0.9},
	}, "staging.go", "assistant"); err != nil {
		t.Fatalf("Ingest error = %v", err)
	}

	r := s.List(1)[0]
	if err := s.Remove(r.ID); err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store size = %d after remove, want 0", s.Len())
	}

	// The same content must be ingestable again after removal.
	res, err := s.Ingest(ctx, []types.Candidate{
		{Question: "What gate runs after approval?", Answer: "A second threat scan over the merged text.", Confidence: 0.9},
	}, "staging.go", "assistant")
	if err != nil {
		t.Fatalf("re-Ingest error = %v", err)
	}
	if res.Added != 1 {
		t.Fatalf("re-ingest result = %+v, want 1 added", res)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".mnemos")
	engine := embedding.NewLocalEngine(128)

	s, err := Open(dir, "", engine, 0.9)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s.Ingest(context.Background(), []types.Candidate{
		{Question: "Where do backups live?", Answer: "Next to the store with a .bak suffix.", Confidence: 0.9},
	}, "store.go", "assistant"); err != nil {
		t.Fatalf("Ingest error = %v", err)
	}
	s.Close()

	reopened, err := Open(dir, "", engine, 0.9)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 1 {
		t.Fatalf("reopened size = %d, want 1", reopened.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, "review", "knowledge.json")); err != nil {
		t.Fatalf("review mirror missing: %v", err)
	}
}

func TestReindexRebuildsAllVectors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []types.Candidate{
		{Question: "What is appended to the validation log?", Answer: "One decision record per candidate.", Confidence: 0.9},
		{Question: "When is the removal ledger written?", Answer: "On hard rejection above the ceiling.", Confidence: 0.9},
	} {
		if _, err := s.Ingest(ctx, []types.Candidate{c}, "decision.go", "assistant"); err != nil {
			t.Fatalf("Ingest error = %v", err)
		}
	}

	if err := s.Reindex(ctx); err != nil {
		t.Fatalf("Reindex error = %v", err)
	}
	if got := s.index.Len(); got != 2 {
		t.Fatalf("indexed vectors = %d, want 2", got)
	}
}
