package vectorindex

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vidqr/vidqr/pkg/durability"
	"github.com/vidqr/vidqr/pkg/kernel"
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

const maxHNSWLayer = 16

// HNSWConfig tunes graph construction and search. The zero value is not
// usable directly — call DefaultHNSWConfig and override from there.
type HNSWConfig struct {
	M              int     // neighbors per node above layer 0; layer 0 keeps 2*M
	EfConstruction int     // beam width while inserting
	EfSearch       int     // beam width while searching; 0 means "use EfConstruction"
	ML             float64 // layer-assignment probability multiplier, normally 1/ln(2)
	Seed           int64   // seeds the per-index RNG so graph shape is reproducible
}

func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:              16,
		EfConstruction: 200,
		EfSearch:       0,
		ML:             1.0 / math.Log(2),
		Seed:           1,
	}
}

type hnswNode struct {
	id        uint64
	vector    []float32
	maxLayer  int
	neighbors [][]uint64 // neighbors[layer], each kept sorted ascending by ID
}

// HNSWIndex is an approximate nearest-neighbor graph: a hierarchy of
// layers where higher layers are sparser long-range shortcuts and
// layer 0 holds every node. Construction and search follow Malkov &
// Yashunin; the per-index *rand.Rand (rather than the package-level
// generator) is what makes two indices built from the same seed and
// insertion order produce byte-identical graphs — the same
// determinism concern the teacher's Leiden clustering solves with its
// own seeded rand.New(rand.NewSource(...)).
type HNSWIndex struct {
	dim      int
	kernel   kernel.Kernel
	config   HNSWConfig
	rng      *rand.Rand
	nodes    map[uint64]*hnswNode
	entryID  uint64
	hasEntry bool
	maxLayer int
}

func NewHNSWIndex(dim int, k kernel.Kernel, config HNSWConfig) *HNSWIndex {
	return &HNSWIndex{
		dim:    dim,
		kernel: k,
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
		nodes:  make(map[uint64]*hnswNode),
	}
}

func (h *HNSWIndex) maxNeighbors(layer int) int {
	if layer == 0 {
		return 2 * h.config.M
	}
	return h.config.M
}

func (h *HNSWIndex) randomLayer() int {
	layer := 0
	for h.rng.Float64() < 1.0/h.config.ML && layer < maxHNSWLayer {
		layer++
	}
	return layer
}

func (h *HNSWIndex) Add(id uint64, v []float32) error {
	if err := checkDimension("hnsw.Add", h.dim, v); err != nil {
		return err
	}
	vcopy := copyVector(v)

	// Re-adding an existing ID overwrites its vector but leaves the
	// graph's layer assignment and edges from the original insertion
	// in place; rebuilding them would require re-running construction
	// for every node that links to it, which this index does not do.
	if existing, ok := h.nodes[id]; ok {
		existing.vector = vcopy
		return nil
	}

	if len(h.nodes) == 0 {
		node := &hnswNode{id: id, vector: vcopy, maxLayer: 0, neighbors: [][]uint64{{}}}
		h.nodes[id] = node
		h.entryID = id
		h.hasEntry = true
		h.maxLayer = 0
		return nil
	}

	layer := h.randomLayer()
	node := &hnswNode{id: id, vector: vcopy, maxLayer: layer, neighbors: make([][]uint64, layer+1)}
	for i := range node.neighbors {
		node.neighbors[i] = []uint64{}
	}
	h.nodes[id] = node
	h.insertNode(node, layer)

	if layer > h.maxLayer {
		h.entryID = id
		h.maxLayer = layer
	}
	return nil
}

func (h *HNSWIndex) insertNode(node *hnswNode, layer int) {
	cur := h.entryID
	for l := h.maxLayer; l > layer; l-- {
		if res := h.searchLayer(node.vector, []uint64{cur}, 1, l); len(res) > 0 {
			cur = res[0].id
		}
	}

	top := min(layer, h.maxLayer)
	for l := top; l >= 0; l-- {
		cands := h.searchLayer(node.vector, []uint64{cur}, h.config.EfConstruction, l)
		maxN := h.maxNeighbors(l)
		if len(cands) > maxN {
			cands = cands[:maxN]
		}
		if len(cands) > 0 {
			cur = cands[0].id
		}

		ids := make([]uint64, len(cands))
		for i, c := range cands {
			ids[i] = c.id
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		node.neighbors[l] = ids

		for _, nid := range ids {
			n, ok := h.nodes[nid]
			if !ok || l > n.maxLayer {
				continue
			}
			n.neighbors[l] = h.pruneAndSort(n.vector, append(n.neighbors[l], node.id), h.maxNeighbors(l))
		}
	}
}

// pruneAndSort deduplicates ids, keeps only the max closest to vector
// when over budget, and returns the result sorted ascending by ID (the
// storage order used for serialization and for neighbor-list scans).
func (h *HNSWIndex) pruneAndSort(vector []float32, ids []uint64, max int) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	deduped := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, id)
	}

	if len(deduped) > max {
		cands := make([]candidate, 0, len(deduped))
		for _, id := range deduped {
			n, ok := h.nodes[id]
			if !ok {
				continue
			}
			cands = append(cands, candidate{id: id, dist: h.kernel.Distance(vector, n.vector)})
		}
		sortByDistanceThenID(cands)
		if len(cands) > max {
			cands = cands[:max]
		}
		deduped = deduped[:0]
		for _, c := range cands {
			deduped = append(deduped, c.id)
		}
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i] < deduped[j] })
	return deduped
}

// searchLayer runs the beam search described for a single layer:
// expand the frontier outward from entryPoints, keeping the ef closest
// candidates seen so far, until the closest unexplored candidate is
// farther than the current worst kept result. Returns candidates
// sorted ascending by distance, tie-broken by ascending ID.
func (h *HNSWIndex) searchLayer(query []float32, entryPoints []uint64, ef, layer int) []candidate {
	visited := make(map[uint64]struct{}, ef*2)
	var working []candidate
	var frontier []candidate

	add := func(id uint64) {
		if _, ok := visited[id]; ok {
			return
		}
		visited[id] = struct{}{}
		n, ok := h.nodes[id]
		if !ok {
			return
		}
		c := candidate{id: id, dist: h.kernel.Distance(query, n.vector)}
		working = append(working, c)
		frontier = append(frontier, c)
	}
	for _, id := range entryPoints {
		add(id)
	}
	if len(working) == 0 {
		return nil
	}

	for len(frontier) > 0 {
		ci := closestIndex(frontier)
		c := frontier[ci]
		frontier = append(frontier[:ci], frontier[ci+1:]...)

		worst := working[farthestIndex(working)]
		if c.dist > worst.dist && len(working) >= ef {
			break
		}

		node, ok := h.nodes[c.id]
		if !ok || layer > node.maxLayer {
			continue
		}
		for _, nid := range node.neighbors[layer] {
			if _, seen := visited[nid]; seen {
				continue
			}
			visited[nid] = struct{}{}
			nn, ok := h.nodes[nid]
			if !ok {
				continue
			}
			d := h.kernel.Distance(query, nn.vector)
			worst := working[farthestIndex(working)]
			if len(working) < ef || d < worst.dist {
				cand := candidate{id: nid, dist: d}
				working = append(working, cand)
				frontier = append(frontier, cand)
				if len(working) > ef {
					wi := farthestIndex(working)
					working = append(working[:wi], working[wi+1:]...)
				}
			}
		}
	}

	sortByDistanceThenID(working)
	return working
}

func (h *HNSWIndex) Search(query []float32, k int) []SearchResult {
	if k <= 0 || !h.hasEntry || len(query) != h.dim {
		return nil
	}

	cur := h.entryID
	for l := h.maxLayer; l > 0; l-- {
		if res := h.searchLayer(query, []uint64{cur}, 1, l); len(res) > 0 {
			cur = res[0].id
		}
	}

	ef := h.config.EfSearch
	if ef <= 0 {
		ef = h.config.EfConstruction
	}
	if ef < k {
		ef = k
	}
	cands := h.searchLayer(query, []uint64{cur}, ef, 0)
	if len(cands) > k {
		cands = cands[:k]
	}

	results := make([]SearchResult, len(cands))
	for i, c := range cands {
		n := h.nodes[c.id]
		results[i] = SearchResult{
			ID:         c.id,
			Distance:   c.dist,
			Similarity: h.kernel.Similarity(query, n.vector),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
	return results
}

func (h *HNSWIndex) AddBatch(items map[uint64][]float32) error {
	ids := make([]uint64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sortUint64s(ids)

	var errs []error
	for _, id := range ids {
		if err := h.Add(id, items[id]); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func (h *HNSWIndex) GetVector(id uint64) ([]float32, bool) {
	n, ok := h.nodes[id]
	if !ok {
		return nil, false
	}
	return copyVector(n.vector), true
}

func (h *HNSWIndex) Size() int { return len(h.nodes) }

func (h *HNSWIndex) Clear() {
	h.nodes = make(map[uint64]*hnswNode)
	h.entryID = 0
	h.hasEntry = false
	h.maxLayer = 0
}

// Save writes the "HNSW index v2" format: header, vector list, then a
// ---GRAPH--- section of "id|layer:nid;nid;..." edge lines.
func (h *HNSWIndex) Save(path string) error {
	return durability.AtomicWriteFile(path, func(file *os.File) error {
		w := bufio.NewWriter(file)
		fmt.Fprintf(w, "HNSW_v2\n%d,%d,%s,%d\n%d\n",
			h.config.M, h.config.EfConstruction, strconv.FormatFloat(h.config.ML, 'g', -1, 64), h.dim, len(h.nodes))

		if h.hasEntry {
			fmt.Fprintf(w, "%d\n", h.entryID)
		} else {
			fmt.Fprintf(w, "null\n")
		}

		ids := make([]uint64, 0, len(h.nodes))
		for id := range h.nodes {
			ids = append(ids, id)
		}
		sortUint64s(ids)

		for _, id := range ids {
			n := h.nodes[id]
			fmt.Fprintf(w, "%d|%d", id, n.maxLayer)
			for _, x := range n.vector {
				fmt.Fprintf(w, ",%s", strconv.FormatFloat(float64(x), 'g', -1, 32))
			}
			w.WriteByte('\n')
		}

		fmt.Fprintf(w, "---GRAPH---\n")
		for _, id := range ids {
			n := h.nodes[id]
			for layer, neighbors := range n.neighbors {
				if len(neighbors) == 0 {
					continue
				}
				nids := make([]string, len(neighbors))
				for i, nid := range neighbors {
					nids[i] = strconv.FormatUint(nid, 10)
				}
				fmt.Fprintf(w, "%d|%d:%s\n", id, layer, strings.Join(nids, ";"))
			}
		}
		return w.Flush()
	})
}

// Load replaces this index's graph with what path holds, leniently:
// neighbor references to unknown IDs are dropped rather than treated
// as corruption, since the owning node's vector and other edges are
// still usable. Use LoadStrict where a dangling reference should fail
// the whole load instead.
func (h *HNSWIndex) Load(path string) error {
	return h.load(path, false)
}

// LoadStrict is Load, except any dangling neighbor reference fails the
// whole load with a corrupt-data error instead of being dropped.
func (h *HNSWIndex) LoadStrict(path string) error {
	return h.load(path, true)
}

func (h *HNSWIndex) load(path string, strict bool) error {
	file, err := os.Open(path)
	if err != nil {
		return vidqrerr.Resource("hnsw.Load", err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 32*1024*1024)

	if !sc.Scan() || sc.Text() != "HNSW_v2" {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("unrecognized header"))
	}
	if !sc.Scan() {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("missing config line"))
	}
	fields := strings.Split(sc.Text(), ",")
	if len(fields) != 4 {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("malformed config line %q", sc.Text()))
	}
	m, err1 := strconv.Atoi(fields[0])
	efc, err2 := strconv.Atoi(fields[1])
	ml, err3 := strconv.ParseFloat(fields[2], 64)
	dim, err4 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("malformed config fields %q", sc.Text()))
	}
	if dim != h.dim {
		return vidqrerr.Invalid("hnsw.Load", fmt.Errorf("dimension mismatch: index is %d, file is %d", h.dim, dim))
	}

	count, err := readIntLine(sc)
	if err != nil {
		return vidqrerr.Corrupt("hnsw.Load", err)
	}

	if !sc.Scan() {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("missing entry point line"))
	}
	entryText := sc.Text()
	var entryID uint64
	hasEntry := entryText != "null"
	if hasEntry {
		entryID, err = strconv.ParseUint(entryText, 10, 64)
		if err != nil {
			return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("bad entry point %q: %w", entryText, err))
		}
	}

	nodes := make(map[uint64]*hnswNode, count)
	maxLayer := 0
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("truncated vector list: expected %d", count))
		}
		id, layer, v, err := parseHNSWVectorLine(sc.Text(), dim)
		if err != nil {
			return vidqrerr.Corrupt("hnsw.Load", err)
		}
		neighbors := make([][]uint64, layer+1)
		for l := range neighbors {
			neighbors[l] = []uint64{}
		}
		nodes[id] = &hnswNode{id: id, vector: v, maxLayer: layer, neighbors: neighbors}
		if layer > maxLayer {
			maxLayer = layer
		}
	}

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "---GRAPH---" {
		return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("missing ---GRAPH--- marker"))
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		ownerID, layer, neighborIDs, ok := parseHNSWEdgeLine(line)
		if !ok {
			continue // unrecognized trailing line, ignored
		}
		owner, exists := nodes[ownerID]
		if !exists || layer > owner.maxLayer {
			continue
		}
		kept := make([]uint64, 0, len(neighborIDs))
		for _, nid := range neighborIDs {
			if _, ok := nodes[nid]; !ok {
				if strict {
					return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("edge from %d references unknown id %d", ownerID, nid))
				}
				continue
			}
			kept = append(kept, nid)
		}
		owner.neighbors[layer] = kept
	}
	if err := sc.Err(); err != nil {
		return vidqrerr.Corrupt("hnsw.Load", err)
	}

	if hasEntry {
		if _, ok := nodes[entryID]; !ok {
			return vidqrerr.Corrupt("hnsw.Load", fmt.Errorf("entry point %d not found among vectors", entryID))
		}
	}

	h.config.M = m
	h.config.EfConstruction = efc
	h.config.ML = ml
	h.nodes = nodes
	h.entryID = entryID
	h.hasEntry = hasEntry
	h.maxLayer = maxLayer
	return nil
}

func parseHNSWVectorLine(line string, dim int) (id uint64, layer int, v []float32, err error) {
	head, rest, ok := strings.Cut(line, "|")
	if !ok {
		return 0, 0, nil, fmt.Errorf("malformed vector line %q", line)
	}
	id, err = strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("bad vector id %q: %w", head, err)
	}
	layerStr, vecStr, ok := strings.Cut(rest, ",")
	if !ok {
		return 0, 0, nil, fmt.Errorf("malformed vector line %q", line)
	}
	layer, err = strconv.Atoi(layerStr)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("bad layer %q: %w", layerStr, err)
	}
	parts := strings.Split(vecStr, ",")
	if len(parts) != dim {
		return 0, 0, nil, fmt.Errorf("vector for id %d has %d components, want %d", id, len(parts), dim)
	}
	v = make([]float32, dim)
	for i, p := range parts {
		x, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("bad component %d for id %d: %w", i, id, err)
		}
		v[i] = float32(x)
	}
	return id, layer, v, nil
}

func parseHNSWEdgeLine(line string) (ownerID uint64, layer int, neighbors []uint64, ok bool) {
	head, rest, found := strings.Cut(line, "|")
	if !found {
		return 0, 0, nil, false
	}
	ownerID, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, 0, nil, false
	}
	layerStr, listStr, found := strings.Cut(rest, ":")
	if !found {
		return 0, 0, nil, false
	}
	layer, err = strconv.Atoi(layerStr)
	if err != nil {
		return 0, 0, nil, false
	}
	if listStr == "" {
		return ownerID, layer, nil, true
	}
	for _, s := range strings.Split(listStr, ";") {
		nid, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, 0, nil, false
		}
		neighbors = append(neighbors, nid)
	}
	return ownerID, layer, neighbors, true
}
