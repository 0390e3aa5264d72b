// Package embed provides placeholder Embedder implementations for running
// a server or the examples without a real embedding model wired in. None of
// these produce semantically meaningful vectors; they exist so the rest of
// the pipeline (chunking, indexing, video sealing) can be exercised end to
// end before a production embedding service is plugged in.
package embed

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Hash returns a deterministic embedding function that derives a
// dim-length unit vector from the FNV-1a hash of the input text. Equal
// text always produces the same vector, and distinct text produces
// vectors spread roughly uniformly over the sphere, which is enough to
// exercise nearest-neighbor search without any actual language
// understanding. The returned function satisfies store.Embedder.
func Hash(dim int) func(text string) ([]float32, error) {
	return func(text string) ([]float32, error) {
		return hashVector(text, dim), nil
	}
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	h := fnv.New64a()
	seed := make([]byte, 8)
	for i := range vec {
		h.Reset()
		binary.BigEndian.PutUint64(seed, uint64(i))
		_, _ = h.Write(seed)
		_, _ = h.Write([]byte(text))
		sum := h.Sum64()
		vec[i] = float32(int64(sum)) / float32(1<<63)
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
