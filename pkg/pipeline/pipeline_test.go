package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/vidqr/vidqr/pkg/chunk"
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/videocodec"
)

func newTestEncoder() *Encoder {
	return NewEncoder(chunk.Config{ChunkSize: 40, OverlapSize: 5, PreserveSentences: true}, qr.NewGenerator(), videocodec.NewKVIDEncoder())
}

func TestEncoder_AddMessageBuffersChunks(t *testing.T) {
	e := newTestEncoder()
	if err := e.AddMessage("A short message to buffer."); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	status := e.Stats()
	if status.State != EncoderBuffered {
		t.Errorf("State = %v, want buffered", status.State)
	}
	if status.BufferedChunks == 0 {
		t.Error("BufferedChunks = 0, want > 0")
	}
}

func TestEncoder_BuildVideoRejectsEmptyBuffer(t *testing.T) {
	e := newTestEncoder()
	_, err := e.BuildVideo("unused.kvid", BuildParams{Width: 64, Height: 64, FPS: 2, Version: 4, ECC: qr.ECCMedium})
	if err == nil {
		t.Fatal("BuildVideo() on empty buffer: want error, got nil")
	}
}

func TestEncoder_BuildVideoEndToEndThenDecode(t *testing.T) {
	e := newTestEncoder()
	messages := []string{
		"Hello from the encode pipeline.",
		"A second short message follows it.",
	}
	for _, m := range messages {
		if err := e.AddMessage(m); err != nil {
			t.Fatalf("AddMessage() error: %v", err)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.kvid")
	// Version 8 grid is 49x49; a frame a multiple of that size keeps
	// the nearest-neighbor scale/downscale round trip exact.
	params := BuildParams{Width: 49 * 2, Height: 49 * 2, FPS: 1, Version: 8, ECC: qr.ECCHigh}

	stats, err := e.BuildVideo(path, params)
	if err != nil {
		t.Fatalf("BuildVideo() error: %v", err)
	}
	if stats.TotalFrames == 0 {
		t.Fatal("BuildVideo() produced zero frames")
	}
	if e.Stats().State != EncoderIdle {
		t.Errorf("State after successful build = %v, want idle", e.Stats().State)
	}
	if e.Stats().BufferedChunks != 0 {
		t.Errorf("BufferedChunks after successful build = %d, want 0", e.Stats().BufferedChunks)
	}

	d := NewDecoder(qr.NewGenerator(), videocodec.NewKVIDDecoder())
	texts, err := d.Retrieve(path)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(texts) != stats.TotalFrames {
		t.Fatalf("Retrieve() returned %d texts, want %d (one per frame)", len(texts), stats.TotalFrames)
	}
}

func TestEncoder_BuildVideoRejectsChunkOverCapacity(t *testing.T) {
	e := NewEncoder(chunk.Config{ChunkSize: 10000, OverlapSize: 0, PreserveSentences: false}, qr.NewGenerator(), videocodec.NewKVIDEncoder())
	huge := make([]byte, 5000)
	for i := range huge {
		huge[i] = 'a'
	}
	if err := e.AddMessage(string(huge)); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.kvid")
	_, err := e.BuildVideo(path, BuildParams{Width: 64, Height: 64, FPS: 1, Version: 1, ECC: qr.ECCHigh})
	if err == nil {
		t.Fatal("BuildVideo() with an oversized chunk: want error, got nil")
	}
	// The buffer must be preserved for retry after a failed precondition check.
	if e.Stats().BufferedChunks == 0 {
		t.Error("buffer was cleared after a failed BuildVideo precondition check")
	}
}

func TestEncoder_BusyDuringBuildRejectsAddMessage(t *testing.T) {
	e := newTestEncoder()
	e.state = EncoderBuilding
	if err := e.AddMessage("should be rejected"); err == nil {
		t.Fatal("AddMessage() while building: want error, got nil")
	}
}

func TestEncoder_ClearResetsBuffer(t *testing.T) {
	e := newTestEncoder()
	if err := e.AddMessage("something to clear"); err != nil {
		t.Fatalf("AddMessage() error: %v", err)
	}
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if e.Stats().BufferedChunks != 0 || e.Stats().State != EncoderIdle {
		t.Errorf("Stats() after Clear = %+v, want empty/idle", e.Stats())
	}
}

func TestDecoder_RetrieveFramesFiltersByIndex(t *testing.T) {
	e := newTestEncoder()
	for i := 0; i < 3; i++ {
		if err := e.AddMessage("message number for frame selection test"); err != nil {
			t.Fatalf("AddMessage() error: %v", err)
		}
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.kvid")
	_, err := e.BuildVideo(path, BuildParams{Width: 41 * 2, Height: 41 * 2, FPS: 1, Version: 6, ECC: qr.ECCMedium})
	if err != nil {
		t.Fatalf("BuildVideo() error: %v", err)
	}

	d := NewDecoder(qr.NewGenerator(), videocodec.NewKVIDDecoder())
	texts, err := d.RetrieveFrames(path, []int{0})
	if err != nil {
		t.Fatalf("RetrieveFrames() error: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("RetrieveFrames([0]) returned %d texts, want 1", len(texts))
	}
}
