package videocodec

import (
	"path/filepath"
	"testing"
)

func makeRGBFrame(width, height int, fill byte) []byte {
	buf := make([]byte, width*height*3)
	for i := range buf {
		buf[i] = fill
	}
	return buf
}

func TestKVID_EncodeDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.kvid")

	enc := NewKVIDEncoder()
	if err := enc.Init(path, Params{Width: 4, Height: 4, FPS: 10, Codec: "KVID"}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := enc.AddFrame(makeRGBFrame(4, 4, byte(i*10)), i); err != nil {
			t.Fatalf("AddFrame(%d) error: %v", i, err)
		}
	}
	stats, err := enc.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if stats.TotalFrames != 3 {
		t.Errorf("TotalFrames = %d, want 3", stats.TotalFrames)
	}
	if stats.FileSize <= 0 {
		t.Errorf("FileSize = %d, want > 0", stats.FileSize)
	}

	dec := NewKVIDDecoder()
	info, err := dec.GetInfo(path)
	if err != nil {
		t.Fatalf("GetInfo() error: %v", err)
	}
	if info.TotalFrames != 3 || info.Width != 4 || info.Height != 4 || info.FPS != 10 {
		t.Errorf("GetInfo() = %+v, want 3 frames at 4x4@10fps", info)
	}

	frames, err := dec.ExtractFrames(path, nil)
	if err != nil {
		t.Fatalf("ExtractFrames() error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("ExtractFrames() returned %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Number != i {
			t.Errorf("frame[%d].Number = %d, want %d", i, f.Number, i)
		}
		if f.RGB[0] != byte(i*10) {
			t.Errorf("frame[%d] payload = %v, want fill %d", i, f.RGB[:1], i*10)
		}
	}
}

func TestKVID_ExtractSpecificFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.kvid")

	enc := NewKVIDEncoder()
	if err := enc.Init(path, Params{Width: 2, Height: 2, FPS: 5}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := enc.AddFrame(makeRGBFrame(2, 2, byte(i)), i); err != nil {
			t.Fatalf("AddFrame(%d) error: %v", i, err)
		}
	}
	if _, err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	dec := NewKVIDDecoder()
	frames, err := dec.ExtractFrames(path, []int{1, 3})
	if err != nil {
		t.Fatalf("ExtractFrames() error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("ExtractFrames(1,3) returned %d frames, want 2", len(frames))
	}
	if frames[0].Number != 1 || frames[1].Number != 3 {
		t.Errorf("frames = %+v, want numbers 1 and 3", frames)
	}
}

func TestKVID_AddFrameRequiresStrictlyIncreasingNumbers(t *testing.T) {
	enc := NewKVIDEncoder()
	if err := enc.Init("unused.kvid", Params{Width: 2, Height: 2, FPS: 1}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if err := enc.AddFrame(makeRGBFrame(2, 2, 1), 0); err != nil {
		t.Fatalf("AddFrame(0) error: %v", err)
	}
	if err := enc.AddFrame(makeRGBFrame(2, 2, 1), 0); err == nil {
		t.Error("AddFrame() with non-increasing frame number: want error, got nil")
	}
}

func TestKVID_AddFrameRejectsWrongPayloadSize(t *testing.T) {
	enc := NewKVIDEncoder()
	if err := enc.Init("unused.kvid", Params{Width: 4, Height: 4, FPS: 1}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if err := enc.AddFrame(make([]byte, 3), 0); err == nil {
		t.Error("AddFrame() with wrong payload size: want error, got nil")
	}
}

func TestKVID_CancelDiscardsBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.kvid")

	enc := NewKVIDEncoder()
	if err := enc.Init(path, Params{Width: 2, Height: 2, FPS: 1}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if err := enc.AddFrame(makeRGBFrame(2, 2, 1), 0); err != nil {
		t.Fatalf("AddFrame() error: %v", err)
	}
	if err := enc.Cancel(); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if _, err := NewKVIDDecoder().GetInfo(path); err == nil {
		t.Error("GetInfo() after Cancel: want error (no file written), got nil")
	}
}

func TestKVID_FinalizeBeforeInitFails(t *testing.T) {
	enc := NewKVIDEncoder()
	if _, err := enc.Finalize(); err == nil {
		t.Error("Finalize() before Init: want error, got nil")
	}
}

func TestKVID_GetInfoMissingFile(t *testing.T) {
	dec := NewKVIDDecoder()
	if _, err := dec.GetInfo("/nonexistent/path.kvid"); err == nil {
		t.Error("GetInfo() of missing file: want error, got nil")
	}
}
