package videocodec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vidqr/vidqr/pkg/durability"
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

const (
	kvidMagic            = "KVID"
	kvidVersion          = 1
	kvidCodecTag         = 1
	kvidPixelFormatRGB24 = 1
)

type kvidFrame struct {
	number    int
	timestamp uint64
	payload   []byte
}

// KVIDEncoder buffers frames in memory and writes the whole container
// atomically at Finalize, so Cancel is a plain discard of that buffer
// with nothing on disk to clean up.
type KVIDEncoder struct {
	path      string
	params    Params
	frames    []kvidFrame
	started   time.Time
	lastFrame int
	hasFrame  bool
}

func NewKVIDEncoder() *KVIDEncoder { return &KVIDEncoder{} }

func (e *KVIDEncoder) Init(path string, params Params) error {
	if params.Width <= 0 || params.Height <= 0 || params.FPS <= 0 {
		return vidqrerr.Invalid("kvid.Init", fmt.Errorf("width, height, and fps must be positive"))
	}
	e.path = path
	e.params = params
	e.frames = nil
	e.started = time.Now()
	e.hasFrame = false
	return nil
}

func (e *KVIDEncoder) AddFrame(rgb []byte, frameNumber int) error {
	if e.path == "" {
		return vidqrerr.State("kvid.AddFrame", fmt.Errorf("addFrame before init"))
	}
	want := e.params.Width * e.params.Height * 3
	if len(rgb) != want {
		return vidqrerr.Invalid("kvid.AddFrame", fmt.Errorf("frame payload is %d bytes, want %d for %dx%d RGB24", len(rgb), want, e.params.Width, e.params.Height))
	}
	if e.hasFrame && frameNumber <= e.lastFrame {
		return vidqrerr.Invalid("kvid.AddFrame", fmt.Errorf("frame numbers must strictly increase: got %d after %d", frameNumber, e.lastFrame))
	}

	payload := make([]byte, len(rgb))
	copy(payload, rgb)
	e.frames = append(e.frames, kvidFrame{
		number:    frameNumber,
		timestamp: uint64(time.Duration(frameNumber) * time.Second / time.Duration(e.params.FPS) / time.Millisecond),
		payload:   payload,
	})
	e.lastFrame = frameNumber
	e.hasFrame = true
	return nil
}

func (e *KVIDEncoder) Finalize() (Stats, error) {
	if e.path == "" {
		return Stats{}, vidqrerr.State("kvid.Finalize", fmt.Errorf("finalize before init"))
	}

	err := durability.AtomicWriteFile(e.path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := writeKVIDHeader(w, e.params, len(e.frames)); err != nil {
			return err
		}
		for _, fr := range e.frames {
			if err := writeKVIDFrame(w, fr); err != nil {
				return err
			}
		}
		return w.Flush()
	})
	if err != nil {
		return Stats{}, vidqrerr.Resource("kvid.Finalize", err)
	}

	info, statErr := os.Stat(e.path)
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	duration := float64(len(e.frames)) / float64(e.params.FPS)
	var bitrate float64
	if duration > 0 {
		bitrate = float64(size*8) / duration
	}

	stats := Stats{
		TotalFrames:     len(e.frames),
		FileSize:        size,
		DurationSeconds: duration,
		AverageBitrate:  bitrate,
		Codec:           "KVID",
		EncodingTimeMs:  time.Since(e.started).Milliseconds(),
	}
	e.path = ""
	return stats, nil
}

// Cancel discards the buffered frames; nothing was ever written to
// disk before Finalize, so there is nothing to clean up.
func (e *KVIDEncoder) Cancel() error {
	e.frames = nil
	e.path = ""
	e.hasFrame = false
	return nil
}

func writeKVIDHeader(w io.Writer, params Params, frameCount int) error {
	if _, err := w.Write([]byte(kvidMagic)); err != nil {
		return err
	}
	meta := []byte{kvidVersion, kvidCodecTag, kvidPixelFormatRGB24, 0}
	if _, err := w.Write(meta); err != nil {
		return err
	}
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(params.Width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(params.Height))
	binary.BigEndian.PutUint32(buf[8:12], uint32(params.FPS))
	binary.BigEndian.PutUint32(buf[12:16], uint32(frameCount))
	_, err := w.Write(buf[:])
	return err
}

func writeKVIDFrame(w io.Writer, fr kvidFrame) error {
	var head [16]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(fr.number))
	binary.BigEndian.PutUint64(head[4:12], fr.timestamp)
	binary.BigEndian.PutUint32(head[12:16], uint32(len(fr.payload)))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(fr.payload)
	return err
}

// KVIDDecoder reads containers written by KVIDEncoder.
type KVIDDecoder struct{}

func NewKVIDDecoder() *KVIDDecoder { return &KVIDDecoder{} }

func (KVIDDecoder) GetInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, vidqrerr.Resource("kvid.GetInfo", err)
	}
	defer f.Close()

	params, frameCount, err := readKVIDHeader(f)
	if err != nil {
		return Info{}, err
	}
	var duration float64
	if params.FPS > 0 {
		duration = float64(frameCount) / float64(params.FPS)
	}
	return Info{
		TotalFrames: frameCount,
		Width:       params.Width,
		Height:      params.Height,
		FPS:         params.FPS,
		Duration:    duration,
		Codec:       "KVID",
	}, nil
}

func (KVIDDecoder) ExtractFrames(path string, indices []int) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vidqrerr.Resource("kvid.ExtractFrames", err)
	}
	defer f.Close()

	params, frameCount, err := readKVIDHeader(f)
	if err != nil {
		return nil, err
	}

	wanted := map[int]bool(nil)
	if indices != nil {
		wanted = make(map[int]bool, len(indices))
		for _, i := range indices {
			wanted[i] = true
		}
	}

	var frames []Frame
	for i := 0; i < frameCount; i++ {
		var head [16]byte
		if _, err := io.ReadFull(f, head[:]); err != nil {
			return nil, vidqrerr.Corrupt("kvid.ExtractFrames", fmt.Errorf("truncated frame header at index %d: %w", i, err))
		}
		number := int(binary.BigEndian.Uint32(head[0:4]))
		size := binary.BigEndian.Uint32(head[12:16])

		if wanted != nil && !wanted[number] {
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, vidqrerr.Corrupt("kvid.ExtractFrames", err)
			}
			continue
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(f, payload); err != nil {
			return nil, vidqrerr.Corrupt("kvid.ExtractFrames", fmt.Errorf("truncated frame payload at index %d: %w", i, err))
		}
		frames = append(frames, Frame{Number: number, RGB: payload, Width: params.Width, Height: params.Height})
	}
	return frames, nil
}

func readKVIDHeader(f *os.File) (Params, int, error) {
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return Params{}, 0, vidqrerr.Corrupt("kvid.readHeader", fmt.Errorf("truncated magic: %w", err))
	}
	if string(magic[:]) != kvidMagic {
		return Params{}, 0, vidqrerr.Corrupt("kvid.readHeader", fmt.Errorf("bad magic %q", magic))
	}
	var meta [4]byte
	if _, err := io.ReadFull(f, meta[:]); err != nil {
		return Params{}, 0, vidqrerr.Corrupt("kvid.readHeader", fmt.Errorf("truncated metadata: %w", err))
	}
	var fields [16]byte
	if _, err := io.ReadFull(f, fields[:]); err != nil {
		return Params{}, 0, vidqrerr.Corrupt("kvid.readHeader", fmt.Errorf("truncated dimensions: %w", err))
	}
	params := Params{
		Width:  int(binary.BigEndian.Uint32(fields[0:4])),
		Height: int(binary.BigEndian.Uint32(fields[4:8])),
		FPS:    int(binary.BigEndian.Uint32(fields[8:12])),
	}
	frameCount := int(binary.BigEndian.Uint32(fields[12:16]))
	return params, frameCount, nil
}
