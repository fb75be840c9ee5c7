package embedding

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 128

var tokenSplitRe = regexp.MustCompile(`\W+`)

// LocalEngine is a deterministic bag-of-hashed-tokens embedder. It is
// intentionally cheap and not semantically rich, but it is stable across
// runs and needs no external service, which is what the duplicate check
// requires.
type LocalEngine struct {
	dims int
}

// NewLocalEngine creates a local hash embedder with the given dimension.
func NewLocalEngine(dims int) *LocalEngine {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &LocalEngine{dims: dims}
}

// Embed tokenizes on non-word boundaries, hashes each lowercased token
// to 16 bits, and accumulates counts into dims buckets before
// L2-normalizing. Empty input yields the zero vector.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	for _, tok := range tokenSplitRe.Split(strings.ToLower(text), -1) {
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		bucket := int(h.Sum32()&0xffff) % e.dims
		vec[bucket]++
	}

	normalize(vec)
	return vec, nil
}

// Dimensions returns the configured vector size.
func (e *LocalEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *LocalEngine) Name() string {
	return "local-hash"
}
