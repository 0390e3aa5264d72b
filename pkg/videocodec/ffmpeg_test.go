package videocodec

import (
	"os/exec"
	"path/filepath"
	"testing"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

func TestFFmpeg_EncodeDecodeRoundTrip(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.mp4")

	enc := NewFFmpegEncoder()
	if err := enc.Init(path, Params{Width: 16, Height: 16, FPS: 5, Codec: "libx264"}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := enc.AddFrame(makeRGBFrame(16, 16, byte(i*20)), i); err != nil {
			t.Fatalf("AddFrame(%d) error: %v", i, err)
		}
	}
	stats, err := enc.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}
	if stats.TotalFrames != 4 {
		t.Errorf("TotalFrames = %d, want 4", stats.TotalFrames)
	}

	dec := NewFFmpegDecoder()
	info, err := dec.GetInfo(path)
	if err != nil {
		t.Fatalf("GetInfo() error: %v", err)
	}
	if info.Width != 16 || info.Height != 16 {
		t.Errorf("GetInfo() dims = %dx%d, want 16x16", info.Width, info.Height)
	}
}

func TestFFmpegEncoder_InitFailsWithoutBinary(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		t.Skip("ffmpeg is installed; this test only covers the missing-binary path")
	}
	enc := NewFFmpegEncoder()
	if err := enc.Init("out.mp4", Params{Width: 4, Height: 4, FPS: 1}); err == nil {
		t.Error("Init() without ffmpeg on PATH: want error, got nil")
	}
}
