package videocodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// FFmpegEncoder shells out to the ffmpeg binary, streaming raw RGB24
// frames over its stdin and letting ffmpeg produce a standard
// container file. This is the "shell-out-to-external-tool" backend;
// KVIDEncoder is the in-process alternative.
type FFmpegEncoder struct {
	path    string
	params  Params
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	frames  int
	last    int
	hasLast bool
}

func NewFFmpegEncoder() *FFmpegEncoder { return &FFmpegEncoder{} }

func (e *FFmpegEncoder) Init(path string, params Params) error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return vidqrerr.Resource("ffmpeg.Init", fmt.Errorf("ffmpeg not found on PATH: %w", err))
	}
	if params.Width <= 0 || params.Height <= 0 || params.FPS <= 0 {
		return vidqrerr.Invalid("ffmpeg.Init", fmt.Errorf("width, height, and fps must be positive"))
	}

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", params.Width, params.Height),
		"-r", strconv.Itoa(params.FPS),
		"-i", "-",
		"-pix_fmt", "yuv420p",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return vidqrerr.Resource("ffmpeg.Init", fmt.Errorf("open ffmpeg stdin: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return vidqrerr.Resource("ffmpeg.Init", fmt.Errorf("start ffmpeg: %w", err))
	}

	e.path = path
	e.params = params
	e.cmd = cmd
	e.stdin = stdin
	e.started = time.Now()
	e.frames = 0
	e.hasLast = false
	return nil
}

func (e *FFmpegEncoder) AddFrame(rgb []byte, frameNumber int) error {
	if e.cmd == nil {
		return vidqrerr.State("ffmpeg.AddFrame", fmt.Errorf("addFrame before init"))
	}
	want := e.params.Width * e.params.Height * 3
	if len(rgb) != want {
		return vidqrerr.Invalid("ffmpeg.AddFrame", fmt.Errorf("frame payload is %d bytes, want %d", len(rgb), want))
	}
	if e.hasLast && frameNumber <= e.last {
		return vidqrerr.Invalid("ffmpeg.AddFrame", fmt.Errorf("frame numbers must strictly increase: got %d after %d", frameNumber, e.last))
	}
	if _, err := e.stdin.Write(rgb); err != nil {
		return vidqrerr.Resource("ffmpeg.AddFrame", fmt.Errorf("write frame to ffmpeg: %w", err))
	}
	e.frames++
	e.last = frameNumber
	e.hasLast = true
	return nil
}

func (e *FFmpegEncoder) Finalize() (Stats, error) {
	if e.cmd == nil {
		return Stats{}, vidqrerr.State("ffmpeg.Finalize", fmt.Errorf("finalize before init"))
	}
	if err := e.stdin.Close(); err != nil {
		return Stats{}, vidqrerr.Resource("ffmpeg.Finalize", fmt.Errorf("close ffmpeg stdin: %w", err))
	}
	if err := e.cmd.Wait(); err != nil {
		return Stats{}, vidqrerr.Resource("ffmpeg.Finalize", fmt.Errorf("ffmpeg exited with error: %w", err))
	}

	duration := float64(e.frames) / float64(e.params.FPS)
	stats := Stats{
		TotalFrames:     e.frames,
		DurationSeconds: duration,
		Codec:           "ffmpeg/" + e.params.Codec,
		EncodingTimeMs:  time.Since(e.started).Milliseconds(),
	}
	if info, err := ffprobeInfo(e.path); err == nil {
		stats.FileSize = info.size
		if duration > 0 {
			stats.AverageBitrate = float64(info.size*8) / duration
		}
	}
	e.cmd = nil
	return stats, nil
}

// Cancel kills the ffmpeg process if still running; best-effort, never
// returns an error even if the process had already exited.
func (e *FFmpegEncoder) Cancel() error {
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}
	_ = e.stdin.Close()
	_ = e.cmd.Process.Kill()
	_ = e.cmd.Wait()
	e.cmd = nil
	return nil
}

// FFmpegDecoder probes and extracts frames via ffprobe/ffmpeg.
type FFmpegDecoder struct{}

func NewFFmpegDecoder() *FFmpegDecoder { return &FFmpegDecoder{} }

func (FFmpegDecoder) GetInfo(path string) (Info, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return Info{}, vidqrerr.Resource("ffmpeg.GetInfo", fmt.Errorf("ffprobe not found on PATH: %w", err))
	}
	probe, err := ffprobeStreams(path)
	if err != nil {
		return Info{}, err
	}
	return Info{
		TotalFrames: probe.frames,
		Width:       probe.width,
		Height:      probe.height,
		FPS:         probe.fps,
		Duration:    probe.duration,
		Codec:       probe.codec,
	}, nil
}

func (d FFmpegDecoder) ExtractFrames(path string, indices []int) ([]Frame, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, vidqrerr.Resource("ffmpeg.ExtractFrames", fmt.Errorf("ffmpeg not found on PATH: %w", err))
	}
	info, err := d.GetInfo(path)
	if err != nil {
		return nil, err
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, vidqrerr.Resource("ffmpeg.ExtractFrames", fmt.Errorf("no video track found in %s", path))
	}

	cmd := exec.Command("ffmpeg", "-i", path, "-f", "rawvideo", "-pix_fmt", "rgb24", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, vidqrerr.Resource("ffmpeg.ExtractFrames", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, vidqrerr.Resource("ffmpeg.ExtractFrames", err)
	}

	frameSize := info.Width * info.Height * 3
	wanted := map[int]bool(nil)
	if indices != nil {
		wanted = make(map[int]bool, len(indices))
		for _, i := range indices {
			wanted[i] = true
		}
	}

	var frames []Frame
	buf := make([]byte, frameSize)
	for n := 0; ; n++ {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			break
		}
		if wanted == nil || wanted[n] {
			payload := make([]byte, frameSize)
			copy(payload, buf)
			frames = append(frames, Frame{Number: n, RGB: payload, Width: info.Width, Height: info.Height})
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, vidqrerr.Resource("ffmpeg.ExtractFrames", fmt.Errorf("ffmpeg exited with error: %w: %s", err, stderr.String()))
	}
	return frames, nil
}

type probeResult struct {
	width, height, fps, frames int
	duration                   float64
	codec                      string
	size                       int64
}

func ffprobeStreams(path string) (probeResult, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_streams", "-show_format", "-of", "json", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return probeResult{}, vidqrerr.Resource("ffprobe", fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String()))
	}

	var doc struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			Width         int    `json:"width"`
			Height        int    `json:"height"`
			RFrameRate    string `json:"r_frame_rate"`
			NbFrames      string `json:"nb_frames"`
			DurationField string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Size string `json:"size"`
		} `json:"format"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return probeResult{}, vidqrerr.Corrupt("ffprobe", fmt.Errorf("parse ffprobe output: %w", err))
	}

	for _, s := range doc.Streams {
		if s.CodecType != "video" {
			continue
		}
		result := probeResult{width: s.Width, height: s.Height, codec: s.CodecName}
		if fps, err := parseFrameRate(s.RFrameRate); err == nil {
			result.fps = fps
		}
		if frames, err := strconv.Atoi(s.NbFrames); err == nil {
			result.frames = frames
		}
		if d, err := strconv.ParseFloat(s.DurationField, 64); err == nil {
			result.duration = d
		}
		if size, err := strconv.ParseInt(doc.Format.Size, 10, 64); err == nil {
			result.size = size
		}
		return result, nil
	}
	return probeResult{}, vidqrerr.Resource("ffprobe", fmt.Errorf("no video track found in %s", path))
}

func ffprobeInfo(path string) (probeResult, error) {
	return ffprobeStreams(path)
}

func parseFrameRate(s string) (int, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.Atoi(s)
		return v, err
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("bad frame rate %q", s)
	}
	return int(n / d), nil
}
