package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mnemos/internal/embedding"
	"mnemos/internal/logging"
)

// Index is the embedding index: a mapping from a stable content key to a
// fixed-dimension unit-norm vector, persisted as a single JSON object and
// rewritten wholesale on change. It grows monotonically except on record
// removal. Callers serialize access through the owning Store.
type Index struct {
	path    string
	dims    int
	vectors map[string][]float32
	dirty   bool
}

// IndexKey derives the stable embedding key for a candidate: a SHA-256
// over question, answer, and origin file.
func IndexKey(question, answer, originFile string) string {
	h := sha256.New()
	h.Write([]byte(question))
	h.Write([]byte{0})
	h.Write([]byte(answer))
	h.Write([]byte{0})
	h.Write([]byte(originFile))
	return hex.EncodeToString(h.Sum(nil))
}

// LoadIndex reads the index file, starting fresh on a missing or corrupt
// file. Vectors with the wrong dimension are dropped on load so the
// invariant "all vectors share one dimension" survives config changes.
func LoadIndex(path string, dims int) *Index {
	idx := &Index{
		path:    path,
		dims:    dims,
		vectors: make(map[string][]float32),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(data, &idx.vectors); err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("corrupt embedding index %s, starting fresh: %v", path, err)
		idx.vectors = make(map[string][]float32)
		return idx
	}

	dropped := 0
	for key, vec := range idx.vectors {
		if len(vec) != dims {
			delete(idx.vectors, key)
			dropped++
		}
	}
	if dropped > 0 {
		logging.Embedding("dropped %d index vectors with stale dimensions", dropped)
		idx.dirty = true
	}
	return idx
}

// Add inserts or replaces a vector.
func (idx *Index) Add(key string, vec []float32) {
	idx.vectors[key] = vec
	idx.dirty = true
}

// Remove deletes a vector; the only operation that shrinks the index.
func (idx *Index) Remove(key string) {
	if _, ok := idx.vectors[key]; ok {
		delete(idx.vectors, key)
		idx.dirty = true
	}
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	return len(idx.vectors)
}

// MostSimilar brute-force scans for the nearest stored vector. Returns
// the matched key and similarity, or ("", 0) for an empty index. The
// index stays small enough for a desktop corpus that a linear scan
// beats carrying an ANN dependency.
func (idx *Index) MostSimilar(vec []float32) (string, float64) {
	var bestKey string
	var bestSim float64
	for key, stored := range idx.vectors {
		if sim := embedding.Cosine(vec, stored); sim > bestSim {
			bestSim = sim
			bestKey = key
		}
	}
	return bestKey, bestSim
}

// Save rewrites the index file if anything changed.
func (idx *Index) Save() error {
	if !idx.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	data, err := json.Marshal(idx.vectors)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(idx.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	idx.dirty = false
	return nil
}
