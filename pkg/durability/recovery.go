package durability

import (
	"os"
	"path/filepath"
)

// RecoveryPlan describes what a store found on disk at Open time.
type RecoveryPlan struct {
	IndexPath    string
	IndexExists  bool
	VideoPath    string
	VideoExists  bool
	WALPath      string
	PendingCount int // buffered messages not yet sealed into the video
}

// Plan inspects dataDir (as laid out by store.Store) and reports what
// state a reopen should restore: does an index snapshot exist, does a
// sealed video exist, and how many WAL entries are waiting to be
// replayed into the in-memory chunk buffer. Adapted from the teacher's
// backup.Recovery, which inspected a data directory for the latest
// snapshot + WAL segments at startup.
func Plan(dataDir string) (RecoveryPlan, error) {
	plan := RecoveryPlan{
		IndexPath: filepath.Join(dataDir, "index.hnsw"),
		VideoPath: filepath.Join(dataDir, "corpus.mp4"),
		WALPath:   filepath.Join(dataDir, "ingest.wal"),
	}

	if _, err := os.Stat(plan.IndexPath); err == nil {
		plan.IndexExists = true
	}
	if _, err := os.Stat(plan.VideoPath); err == nil {
		plan.VideoExists = true
	}

	entries, err := ReadAll(plan.WALPath)
	if err != nil {
		return plan, err
	}
	plan.PendingCount = len(entries)
	return plan, nil
}
