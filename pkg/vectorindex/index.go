// Package vectorindex implements the two vector indices the store is
// built on: an exhaustive-scan FlatIndex (the exact-search oracle) and
// an approximate HNSWIndex (hierarchical navigable small-world graph).
// Both share one public surface so callers can swap implementations
// freely, matching the teacher's vector.Index contract but reshaped to
// the spec's (id, similarity, distance) result triples, seeded
// determinism, and §6.2 persistence formats.
package vectorindex

import (
	"fmt"

	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// SearchResult is one ranked hit: ID plus both similarity (for ranking,
// descending) and distance (the traversal metric the index used).
type SearchResult struct {
	ID         uint64
	Similarity float32
	Distance   float32
}

// Index is the shared contract for FlatIndex and HNSWIndex. Neither
// implementation synchronizes internally (§5: single-threaded logical
// objects) — callers running one instance across goroutines must wrap
// it in their own mutual exclusion.
type Index interface {
	Add(id uint64, v []float32) error
	AddBatch(items map[uint64][]float32) error
	Search(query []float32, k int) []SearchResult
	GetVector(id uint64) ([]float32, bool)
	Size() int
	Clear()
	Save(path string) error
	Load(path string) error
}

func checkDimension(op string, dim int, v []float32) error {
	if len(v) != dim {
		return vidqrerr.Invalid(op, fmt.Errorf("vector dimension mismatch: want %d, got %d", dim, len(v)))
	}
	return nil
}

func copyVector(v []float32) []float32 {
	c := make([]float32, len(v))
	copy(c, v)
	return c
}

// candidate is an (id, distance) pair used by both indices while
// ranking; a shared type keeps the sort/tie-break rule in one place.
type candidate struct {
	id   uint64
	dist float32
}

func sortByDistanceThenID(c []candidate) {
	// Insertion sort is fine here: candidate lists are bounded by ef
	// (a few hundred at most), and this keeps the tie-break rule
	// (ascending distance, then ascending ID) explicit and obviously
	// correct rather than buried in a sort.Slice less-func.
	for i := 1; i < len(c); i++ {
		j := i
		for j > 0 && less(c[j], c[j-1]) {
			c[j], c[j-1] = c[j-1], c[j]
			j--
		}
	}
}

func less(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

// farthestIndex returns the index of the candidate with the greatest
// distance, tie-broken by the higher ID (so eviction/comparison always
// prefers to keep the lower ID among equal-distance candidates).
func farthestIndex(c []candidate) int {
	worst := 0
	for i := 1; i < len(c); i++ {
		if c[i].dist > c[worst].dist || (c[i].dist == c[worst].dist && c[i].id > c[worst].id) {
			worst = i
		}
	}
	return worst
}

// closestIndex returns the index of the candidate with the smallest
// distance, tie-broken by the lower ID.
func closestIndex(c []candidate) int {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i].dist < c[best].dist || (c[i].dist == c[best].dist && c[i].id < c[best].id) {
			best = i
		}
	}
	return best
}
