// Package durability provides the crash-safety primitives shared by index
// persistence and the encode pipeline: atomic write-to-temp-then-rename
// files, a write-ahead log of buffered ingest messages, a tar.gz archiver
// for bundling a store's on-disk state, and a startup recovery planner.
//
// The atomic-write and checksum techniques here are adapted from the
// teacher's backup.SnapshotWriter and backup.WAL, repurposed from
// whole-database snapshots to single-file index/video persistence.
package durability

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path via a temp file in the same
// directory followed by fsync + rename, so a reader never observes a
// partially written file and a failed write never clobbers a prior good
// one. This is the mechanism behind every Save() in this module.
func AtomicWriteFile(path string, write func(f *os.File) error) (retErr error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
