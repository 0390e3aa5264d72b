package vectorindex

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/vidqr/vidqr/pkg/durability"
	"github.com/vidqr/vidqr/pkg/kernel"
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// FlatIndex is an exhaustive-scan index: Search compares the query
// against every stored vector. It is the exact-search oracle the HNSW
// recall floor is measured against, and a fine default for small
// corpora where approximate search buys nothing.
type FlatIndex struct {
	dim     int
	kernel  kernel.Kernel
	vectors map[uint64][]float32
	order   []uint64 // insertion order, for a stable Save layout
}

func NewFlatIndex(dim int, k kernel.Kernel) *FlatIndex {
	return &FlatIndex{
		dim:     dim,
		kernel:  k,
		vectors: make(map[uint64][]float32),
	}
}

func (f *FlatIndex) Add(id uint64, v []float32) error {
	if err := checkDimension("flat.Add", f.dim, v); err != nil {
		return err
	}
	if _, exists := f.vectors[id]; !exists {
		f.order = append(f.order, id)
	}
	f.vectors[id] = copyVector(v)
	return nil
}

// AddBatch inserts every entry in ascending-ID order, equivalent to
// calling Add for each one. A dimension-mismatched entry does not stop
// the batch; every error encountered is joined and returned together.
func (f *FlatIndex) AddBatch(items map[uint64][]float32) error {
	ids := make([]uint64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sortUint64s(ids)

	var errs []error
	for _, id := range ids {
		if err := f.Add(id, items[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func (f *FlatIndex) Search(query []float32, k int) []SearchResult {
	if k <= 0 || len(query) != f.dim || len(f.vectors) == 0 {
		return nil
	}

	cands := make([]candidate, 0, len(f.vectors))
	for id, v := range f.vectors {
		cands = append(cands, candidate{id: id, dist: f.kernel.Distance(query, v)})
	}
	sortByDistanceThenID(cands)
	if len(cands) > k {
		cands = cands[:k]
	}

	results := make([]SearchResult, len(cands))
	for i, c := range cands {
		results[i] = SearchResult{
			ID:         c.id,
			Distance:   c.dist,
			Similarity: f.kernel.Similarity(query, f.vectors[c.id]),
		}
	}
	return results
}

func (f *FlatIndex) GetVector(id uint64) ([]float32, bool) {
	v, ok := f.vectors[id]
	if !ok {
		return nil, false
	}
	return copyVector(v), true
}

func (f *FlatIndex) Size() int { return len(f.vectors) }

func (f *FlatIndex) Clear() {
	f.vectors = make(map[uint64][]float32)
	f.order = nil
}

// Save writes the "Flat index v1" format: dimension, count, then one
// "id,f0,...,f(D-1)" line per vector in insertion order.
func (f *FlatIndex) Save(path string) error {
	return durability.AtomicWriteFile(path, func(file *os.File) error {
		w := bufio.NewWriter(file)
		fmt.Fprintf(w, "%d\n%d\n", f.dim, len(f.order))
		for _, id := range f.order {
			v := f.vectors[id]
			if v == nil {
				continue
			}
			writeVectorLine(w, id, v)
		}
		return w.Flush()
	})
}

// Load replaces this index's contents with what path holds, only after
// the whole file parses cleanly — a corrupt or truncated file leaves
// the index exactly as it was before the call.
func (f *FlatIndex) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return vidqrerr.Resource("flat.Load", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	dim, err := readIntLine(sc)
	if err != nil {
		return vidqrerr.Corrupt("flat.Load", err)
	}
	if dim != f.dim {
		return vidqrerr.Invalid("flat.Load", fmt.Errorf("dimension mismatch: index is %d, file is %d", f.dim, dim))
	}

	count, err := readIntLine(sc)
	if err != nil {
		return vidqrerr.Corrupt("flat.Load", err)
	}

	vectors := make(map[uint64][]float32, count)
	order := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return vidqrerr.Corrupt("flat.Load", fmt.Errorf("truncated vector list: expected %d vectors", count))
		}
		id, v, err := parseVectorLine(sc.Text(), dim)
		if err != nil {
			return vidqrerr.Corrupt("flat.Load", err)
		}
		if _, dup := vectors[id]; !dup {
			order = append(order, id)
		}
		vectors[id] = v
	}
	if err := sc.Err(); err != nil {
		return vidqrerr.Corrupt("flat.Load", err)
	}

	f.vectors = vectors
	f.order = order
	return nil
}

func writeVectorLine(w *bufio.Writer, id uint64, v []float32) {
	fmt.Fprintf(w, "%d", id)
	for _, x := range v {
		fmt.Fprintf(w, ",%s", strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	w.WriteByte('\n')
}

func parseVectorLine(line string, dim int) (uint64, []float32, error) {
	parts := strings.Split(line, ",")
	if len(parts) != dim+1 {
		return 0, nil, fmt.Errorf("vector line has %d fields, want %d", len(parts), dim+1)
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("bad vector id %q: %w", parts[0], err)
	}
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		x, err := strconv.ParseFloat(parts[i+1], 32)
		if err != nil {
			return 0, nil, fmt.Errorf("bad component %d: %w", i, err)
		}
		v[i] = float32(x)
	}
	return id, v, nil
}

func readIntLine(sc *bufio.Scanner) (int, error) {
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("unexpected end of file")
	}
	n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil {
		return 0, fmt.Errorf("bad integer line %q: %w", sc.Text(), err)
	}
	return n, nil
}

func sortUint64s(ids []uint64) {
	for i := 1; i < len(ids); i++ {
		j := i
		for j > 0 && ids[j] < ids[j-1] {
			ids[j], ids[j-1] = ids[j-1], ids[j]
			j--
		}
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%d errors: %s", len(errs), strings.Join(msgs, "; "))
}
