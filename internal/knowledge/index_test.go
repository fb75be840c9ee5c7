package knowledge

import (
	"math"
	"path/filepath"
	"testing"
)

func TestIndexKeyStable(t *testing.T) {
	a := IndexKey("q", "a", "f.go")
	b := IndexKey("q", "a", "f.go")
	if a != b {
		t.Fatalf("keys differ: %s vs %s", a, b)
	}
	if IndexKey("q", "a", "g.go") == a {
		t.Fatal("origin file not part of key")
	}
	// Field boundaries matter: ("qa","","f") must not collide with ("q","a","f").
	if IndexKey("qa", "", "f.go") == a {
		t.Fatal("field boundary collision")
	}
}

func TestMostSimilarBoundary(t *testing.T) {
	idx := LoadIndex(filepath.Join(t.TempDir(), "embeddings.json"), 2)
	idx.Add("existing", []float32{1, 0})

	near := []float32{0.89, float32(math.Sqrt(1 - 0.89*0.89))}
	key, sim := idx.MostSimilar(near)
	if key != "existing" {
		t.Fatalf("key = %q, want existing", key)
	}
	if math.Abs(sim-0.89) > 1e-4 {
		t.Fatalf("similarity = %v, want 0.89", sim)
	}

	// The store admits at sim < threshold and collapses at >= threshold.
	if sim >= 0.9 {
		t.Fatal("0.89 must admit both records under the 0.9 threshold")
	}
	if exact, s2 := idx.MostSimilar([]float32{1, 0}); exact != "existing" || s2 < 0.9 {
		t.Fatalf("identical vector sim = %v, want >= 0.9", s2)
	}
}

func TestIndexLoadDropsStaleDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.json")

	idx := LoadIndex(path, 4)
	idx.Add("keep", []float32{0.5, 0.5, 0.5, 0.5})
	if err := idx.Save(); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	narrow := LoadIndex(path, 8)
	if narrow.Len() != 0 {
		t.Fatalf("stale-dimension vectors survived: %d", narrow.Len())
	}

	same := LoadIndex(path, 4)
	if same.Len() != 1 {
		t.Fatalf("vectors lost on reload: %d", same.Len())
	}
}
