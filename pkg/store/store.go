// Package store bundles the chunker, vector index, and video
// encode/decode coordinators defined elsewhere in this module into one
// facade backed by a single data directory, and a Manager that keeps
// many such facades alive under one process.
package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vidqr/vidqr/pkg/chunk"
	"github.com/vidqr/vidqr/pkg/durability"
	"github.com/vidqr/vidqr/pkg/kernel"
	"github.com/vidqr/vidqr/pkg/metrics"
	"github.com/vidqr/vidqr/pkg/pipeline"
	"github.com/vidqr/vidqr/pkg/pool"
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/streaming"
	"github.com/vidqr/vidqr/pkg/vectorindex"
	"github.com/vidqr/vidqr/pkg/videocodec"
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// Metrics is the shared collector every Store reports ingest/seal/query
// counts and latencies to. A package-level collector (rather than one
// per Store) matches how a single process-wide metrics endpoint is
// normally scraped.
var Metrics = metrics.NewCollector()

// Embedder turns a chunk of text into the vector the index searches
// over. The store has no opinion on how embeddings are produced — a
// caller wires in whatever model or service it runs.
type Embedder func(text string) ([]float32, error)

// Config configures one Store. The zero value is not usable; build one
// with DefaultConfig and override fields as needed.
type Config struct {
	Dim           int
	Kernel        kernel.Kernel
	ChunkConfig   chunk.Config
	HNSWConfig    vectorindex.HNSWConfig
	FlatCrossover int // Open uses FlatIndex if 0 <= FlatCrossover, else HNSW; chosen once, not revisited as the corpus grows
	BuildParams   pipeline.BuildParams
	VideoEncoder  videocodec.Encoder // defaults to a KVID encoder if nil
	VideoDecoder  videocodec.Decoder // defaults to a KVID decoder if nil
}

// DefaultConfig returns a Config using cosine similarity, the package
// defaults for chunking and HNSW, and a FlatCrossover of 1000, with
// which Open always builds a FlatIndex.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:           dim,
		Kernel:        kernel.NewCosine(dim),
		ChunkConfig:   chunk.DefaultConfig(),
		HNSWConfig:    vectorindex.DefaultHNSWConfig(),
		FlatCrossover: 1000,
		BuildParams:   pipeline.BuildParams{Width: 256, Height: 256, FPS: 2, Version: 20, ECC: qr.ECCMedium},
	}
}

const metaFileName = "store.meta"

// Store bundles a chunker, a kernel-backed vector index, and the
// encode/decode coordinators against one data directory:
// index.hnsw/corpus.mp4/ingest.wal, laid out by durability.Plan.
// Ingest buffers text for the next Seal and indexes it immediately so
// Query can find it before the corpus is ever sealed into video. It is
// not safe for concurrent use by multiple goroutines; Manager supplies
// that guarantee per named Store.
type Store struct {
	dir    string
	cfg    Config
	embed  Embedder
	index  vectorindex.Index
	enc    *pipeline.Encoder
	dec    *pipeline.Decoder
	wal     *durability.WAL
	nextID  uint64
	vecPool *pool.VectorPool
}

func newIndex(cfg Config, sizeHint int) vectorindex.Index {
	if sizeHint <= cfg.FlatCrossover {
		return vectorindex.NewFlatIndex(cfg.Dim, cfg.Kernel)
	}
	return vectorindex.NewHNSWIndex(cfg.Dim, cfg.Kernel, cfg.HNSWConfig)
}

// Open opens or creates the store rooted at dir: it loads an existing
// index snapshot if one was left by a prior Seal, opens the
// write-ahead log, and replays any entries the log still holds (text
// that was ingested but never sealed, e.g. because the process died in
// between) back through the same ingest path so the index and the
// encoder's pending buffer agree. Grounded on the teacher's
// backup.Recovery startup sequence: inspect the data directory, restore
// what's there, replay what's pending.
func Open(dir string, cfg Config, embed Embedder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vidqrerr.Resource("store.Open", fmt.Errorf("create data directory: %w", err))
	}

	plan, err := durability.Plan(dir)
	if err != nil {
		return nil, vidqrerr.Resource("store.Open", err)
	}

	nextID, err := readMeta(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, err
	}

	idx := newIndex(cfg, 0)
	if plan.IndexExists {
		if err := idx.Load(plan.IndexPath); err != nil {
			return nil, err
		}
	}

	videoEnc := cfg.VideoEncoder
	if videoEnc == nil {
		videoEnc = videocodec.NewKVIDEncoder()
	}
	videoDec := cfg.VideoDecoder
	if videoDec == nil {
		videoDec = videocodec.NewKVIDDecoder()
	}
	qrGen := qr.NewGenerator()

	wal, err := durability.OpenWAL(plan.WALPath)
	if err != nil {
		return nil, vidqrerr.Resource("store.Open", err)
	}

	s := &Store{
		dir:    dir,
		cfg:    cfg,
		embed:  embed,
		index:  idx,
		enc:    pipeline.NewEncoder(cfg.ChunkConfig, qrGen, videoEnc),
		dec:    pipeline.NewDecoder(qrGen, videoDec),
		wal:     wal,
		nextID:  nextID,
		vecPool: pool.NewVectorPool(),
	}

	if plan.PendingCount > 0 {
		entries, err := durability.ReadAll(plan.WALPath)
		if err != nil {
			_ = wal.Close()
			return nil, vidqrerr.Resource("store.Open", err)
		}
		for _, e := range entries {
			if _, err := s.ingestChunks(e.Text); err != nil {
				_ = wal.Close()
				return nil, err
			}
		}
	}

	return s, nil
}

// Ingest chunks text, embeds and indexes each chunk, durably appends it
// to the write-ahead log, and buffers it for the next Seal. It returns
// the IDs assigned to each chunk, in order.
func (s *Store) Ingest(text string) ([]uint64, error) {
	started := time.Now()
	ids, err := s.ingestChunks(text)
	if err != nil {
		Metrics.Counter("store.ingest.errors", 1)
		return nil, err
	}
	if _, err := s.wal.Append(text); err != nil {
		Metrics.Counter("store.ingest.errors", 1)
		return nil, vidqrerr.Resource("store.Ingest", err)
	}
	Metrics.Counter("store.ingest.chunks", int64(len(ids)))
	Metrics.Histogram("store.ingest.latency_ms", float64(time.Since(started).Milliseconds()))
	return ids, nil
}

// ingestChunks performs the chunk/embed/index/buffer steps shared by
// Ingest and WAL replay, without touching the log itself (replay reads
// from the log, it must not write back to it).
func (s *Store) ingestChunks(text string) ([]uint64, error) {
	chunks, err := chunk.Split(text, s.cfg.ChunkConfig)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(chunks))
	for _, c := range chunks {
		vec, err := s.embed(c.Content)
		if err != nil {
			return nil, vidqrerr.Invalid("store.Ingest", fmt.Errorf("embed chunk %d: %w", c.SequenceNumber, err))
		}
		id := atomic.AddUint64(&s.nextID, 1)
		if err := s.index.Add(id, vec); err != nil {
			return nil, err
		}
		if err := s.enc.AddMessage(c.Content); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Query embeds text and returns the k nearest indexed chunks.
func (s *Store) Query(text string, k int) ([]vectorindex.SearchResult, error) {
	started := time.Now()
	vec, err := s.embed(text)
	if err != nil {
		return nil, vidqrerr.Invalid("store.Query", fmt.Errorf("embed query: %w", err))
	}
	results := s.index.Search(vec, k)
	Metrics.Counter("store.query.count", 1)
	Metrics.Histogram("store.query.latency_ms", float64(time.Since(started).Milliseconds()))
	return results, nil
}

// QueryBatch runs Query for every text in texts, copying each
// embedding into a pooled scratch vector for the Search call; the
// Embedder still returns a freshly allocated vector per text.
// Search never retains its query argument, so the buffer is
// safe to return to the pool as soon as Search returns.
func (s *Store) QueryBatch(texts []string, k int) ([][]vectorindex.SearchResult, error) {
	results := make([][]vectorindex.SearchResult, len(texts))
	for i, text := range texts {
		vec, err := s.embed(text)
		if err != nil {
			return nil, vidqrerr.Invalid("store.QueryBatch", fmt.Errorf("embed query %d: %w", i, err))
		}
		scratch := s.vecPool.Get(len(vec))
		copy(scratch, vec)
		results[i] = s.index.Search(scratch, k)
		s.vecPool.Put(scratch)
		Metrics.Counter("store.query.count", 1)
	}
	return results, nil
}

// Retrieve decodes every sealed frame in the corpus back into text.
func (s *Store) Retrieve() ([]string, error) {
	plan, err := durability.Plan(s.dir)
	if err != nil {
		return nil, vidqrerr.Resource("store.Retrieve", err)
	}
	if !plan.VideoExists {
		return nil, vidqrerr.State("store.Retrieve", fmt.Errorf("no sealed corpus in %s", s.dir))
	}
	return s.dec.Retrieve(plan.VideoPath)
}

// RetrieveStream decodes the sealed corpus and hands the result to the
// caller over a bounded channel instead of one big slice, so a consumer
// can start processing the first chunks while later ones are still
// being delivered, or cancel early via ctx. Decoding itself still runs
// as one pass over the video (pkg/videocodec has no frame-by-frame
// iterator); this bounds memory on the consumer side, not the decode
// side.
func (s *Store) RetrieveStream(ctx context.Context, bufferSize int) *streaming.Stream[string] {
	st := streaming.New[string](ctx, bufferSize)
	go func() {
		texts, err := s.Retrieve()
		if err != nil {
			st.Close(err)
			return
		}
		for _, text := range texts {
			if sendErr := st.Send(text); sendErr != nil {
				st.Close(sendErr)
				return
			}
		}
		st.Close(nil)
	}()
	return st
}

// Seal builds the buffered chunks into the corpus video, persists the
// index snapshot, and truncates the write-ahead log now that its
// entries are durably represented in the sealed video. If BuildVideo
// fails, the WAL and index are left untouched so a retry can pick up
// exactly where this attempt left off.
func (s *Store) Seal() (videocodec.Stats, error) {
	plan, err := durability.Plan(s.dir)
	if err != nil {
		return videocodec.Stats{}, vidqrerr.Resource("store.Seal", err)
	}

	stats, err := s.enc.BuildVideo(plan.VideoPath, s.cfg.BuildParams)
	if err != nil {
		return videocodec.Stats{}, err
	}

	if err := s.index.Save(plan.IndexPath); err != nil {
		return videocodec.Stats{}, err
	}
	if err := writeMeta(filepath.Join(s.dir, metaFileName), atomic.LoadUint64(&s.nextID)); err != nil {
		return videocodec.Stats{}, err
	}
	if err := s.wal.Truncate(); err != nil {
		return videocodec.Stats{}, vidqrerr.Resource("store.Seal", err)
	}
	Metrics.Counter("store.seal.count", 1)
	Metrics.Gauge("store.seal.last_frame_count", int64(stats.TotalFrames))
	return stats, nil
}

// Close releases the write-ahead log's file handle. It does not seal a
// pending buffer — an open WAL is exactly what lets the next Open
// replay it.
func (s *Store) Close() error {
	return s.wal.Close()
}

func readMeta(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, vidqrerr.Resource("store.Open", fmt.Errorf("read %s: %w", metaFileName, err))
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, nil
	}
	n, err := strconv.ParseUint(scanner.Text(), 10, 64)
	if err != nil {
		return 0, vidqrerr.Corrupt("store.Open", fmt.Errorf("parse %s: %w", metaFileName, err))
	}
	return n, nil
}

func writeMeta(path string, nextID uint64) error {
	return durability.AtomicWriteFile(path, func(f *os.File) error {
		_, err := fmt.Fprintf(f, "%d\n", nextID)
		return err
	})
}
