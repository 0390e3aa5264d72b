package durability

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// WAL is a single-segment, append-only log of ingested messages, so a
// store that crashes between Ingest calls and the next Seal can replay
// its buffer on reopen instead of losing unsealed text. Adapted from the
// teacher's multi-segment backup.WAL, simplified to one file per store
// (a store's WAL is truncated on every successful Seal, so unbounded
// growth across segments was never a concern here).
type WAL struct {
	mu   sync.Mutex
	path string
	file *os.File
	lsn  uint64
}

// Entry is one buffered ingest message recovered from the log.
type Entry struct {
	LSN  uint64
	Text string
}

// OpenWAL opens (creating if absent) the WAL file at path.
func OpenWAL(path string) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	lsn, err := lastLSN(path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &WAL{path: path, file: f, lsn: lsn}, nil
}

// Append writes text as the next WAL entry and fsyncs before returning,
// so a successful Append is durable before the caller's in-memory
// buffer is considered safe.
func (w *WAL) Append(text string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lsn++
	data := []byte(text)
	sum := xxhash.Sum64(data)

	buf := make([]byte, 8+4+len(data)+8)
	binary.BigEndian.PutUint64(buf[0:8], w.lsn)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(data)))
	copy(buf[12:], data)
	binary.BigEndian.PutUint64(buf[12+len(data):], sum)

	if _, err := w.file.Write(buf); err != nil {
		return 0, fmt.Errorf("append wal entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync wal: %w", err)
	}
	return w.lsn, nil
}

// Truncate discards all entries, called after a successful Seal once the
// buffered messages are durably encoded into the video container.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek wal: %w", err)
	}
	w.lsn = 0
	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadAll replays every entry currently in the WAL in LSN order. Entries
// with a mismatched checksum are dropped (the corrupt tail of a log torn
// by a mid-write crash), not surfaced as an error — matching the
// best-effort recovery posture used elsewhere for partial failures.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open wal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	for {
		var header [12]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("read wal header: %w", err)
		}
		lsn := binary.BigEndian.Uint64(header[0:8])
		length := binary.BigEndian.Uint32(header[8:12])

		data := make([]byte, length)
		if _, err := io.ReadFull(f, data); err != nil {
			break // truncated entry, stop replay here
		}
		var sumBuf [8]byte
		if _, err := io.ReadFull(f, sumBuf[:]); err != nil {
			break
		}
		want := binary.BigEndian.Uint64(sumBuf[:])
		if xxhash.Sum64(data) != want {
			break // checksum mismatch marks the torn tail; stop here
		}
		entries = append(entries, Entry{LSN: lsn, Text: string(data)})
	}
	return entries, nil
}

func lastLSN(path string) (uint64, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[len(entries)-1].LSN, nil
}
