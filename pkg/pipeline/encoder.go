// Package pipeline holds the two coordinators that sit between text
// and the video container: Encoder buffers chunked messages and builds
// them into a video of QR frames, Decoder reads a video back into
// text. Both are grounded on the teacher's backup.BackupCoordinator
// two-phase-commit shape — a Prepare-style precondition check, a
// commit phase that does the real work, and an infallible abort/cancel
// path — but carry no internal mutex: per this module's concurrency
// model, coordinators are single-threaded logical objects and the
// caller owns synchronization if one is shared across goroutines.
package pipeline

import (
	"fmt"
	"time"

	"github.com/vidqr/vidqr/pkg/chunk"
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/videocodec"
	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// EncoderState is the coordinator's position in its idle -> buffered ->
// building -> idle lifecycle.
type EncoderState int

const (
	EncoderIdle EncoderState = iota
	EncoderBuffered
	EncoderBuilding
)

func (s EncoderState) String() string {
	switch s {
	case EncoderIdle:
		return "idle"
	case EncoderBuffered:
		return "buffered"
	case EncoderBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// BuildParams configures one buildVideo call: the output video's
// frame geometry and the QR version/ECC level used for every chunk.
type BuildParams struct {
	Width   int
	Height  int
	FPS     int
	Version int
	ECC     qr.ECCLevel
}

// EncoderStatus is what getStats reports.
type EncoderStatus struct {
	State          EncoderState
	BufferedChunks int
}

// Encoder buffers chunked text and builds it into a video of QR
// frames. It is not safe for concurrent use by multiple goroutines.
type Encoder struct {
	chunkConfig chunk.Config
	qrGen       qr.Generator
	videoEnc    videocodec.Encoder

	buffer []chunk.Chunk
	state  EncoderState
}

func NewEncoder(chunkConfig chunk.Config, qrGen qr.Generator, videoEnc videocodec.Encoder) *Encoder {
	return &Encoder{chunkConfig: chunkConfig, qrGen: qrGen, videoEnc: videoEnc, state: EncoderIdle}
}

// AddMessage chunks text and appends the result to the buffer.
func (e *Encoder) AddMessage(text string) error {
	if e.state == EncoderBuilding {
		return vidqrerr.State("pipeline.AddMessage", fmt.Errorf("encoder is busy building a video"))
	}
	chunks, err := chunk.Split(text, e.chunkConfig)
	if err != nil {
		return err
	}
	e.buffer = append(e.buffer, chunks...)
	if len(e.buffer) > 0 {
		e.state = EncoderBuffered
	}
	return nil
}

// BuildVideo validates every precondition before touching the video
// encoder, then renders each buffered chunk as a QR frame. If any step
// after Init fails, the underlying encoder is canceled, the original
// error is returned, and the buffer is left untouched so the caller
// can fix the condition and retry.
func (e *Encoder) BuildVideo(path string, params BuildParams) (videocodec.Stats, error) {
	if e.state == EncoderBuilding {
		return videocodec.Stats{}, vidqrerr.State("pipeline.BuildVideo", fmt.Errorf("a build is already in progress"))
	}
	if len(e.buffer) == 0 {
		return videocodec.Stats{}, vidqrerr.Invalid("pipeline.BuildVideo", fmt.Errorf("buffer is empty"))
	}

	caps := e.qrGen.Capabilities()
	if !supportsECC(caps, params.ECC) {
		return videocodec.Stats{}, vidqrerr.Invalid("pipeline.BuildVideo", fmt.Errorf("ECC level %s is not supported", params.ECC))
	}
	capacity := qr.DataCapacity(params.Version, params.ECC)
	for i, c := range e.buffer {
		if len(c.Content) > capacity {
			return videocodec.Stats{}, vidqrerr.Invalid("pipeline.BuildVideo", fmt.Errorf("chunk %d (%d bytes) exceeds QR capacity of %d bytes", i, len(c.Content), capacity))
		}
	}

	e.state = EncoderBuilding
	started := time.Now()

	if err := e.videoEnc.Init(path, videocodec.Params{Width: params.Width, Height: params.Height, FPS: params.FPS, Codec: "KVID"}); err != nil {
		e.state = EncoderBuffered
		return videocodec.Stats{}, err
	}

	for i, c := range e.buffer {
		img, err := e.qrGen.Generate(c.Content, params.Version, params.ECC)
		if err != nil {
			_ = e.videoEnc.Cancel()
			e.state = EncoderBuffered
			return videocodec.Stats{}, err
		}
		rgb := scaleGrayToRGB(img, params.Width, params.Height)
		if err := e.videoEnc.AddFrame(rgb, i); err != nil {
			_ = e.videoEnc.Cancel()
			e.state = EncoderBuffered
			return videocodec.Stats{}, err
		}
	}

	stats, err := e.videoEnc.Finalize()
	if err != nil {
		_ = e.videoEnc.Cancel()
		e.state = EncoderBuffered
		return videocodec.Stats{}, err
	}

	stats.EncodingTimeMs = time.Since(started).Milliseconds()
	e.buffer = nil
	e.state = EncoderIdle
	return stats, nil
}

func supportsECC(caps qr.Capabilities, ecc qr.ECCLevel) bool {
	for _, level := range caps.SupportedEccLevels {
		if level == ecc {
			return true
		}
	}
	return false
}

// Stats reports the coordinator's current state without mutating it.
func (e *Encoder) Stats() EncoderStatus {
	return EncoderStatus{State: e.state, BufferedChunks: len(e.buffer)}
}

// Clear discards the buffer and returns to idle. It refuses while a
// build is in progress.
func (e *Encoder) Clear() error {
	if e.state == EncoderBuilding {
		return vidqrerr.State("pipeline.Clear", fmt.Errorf("encoder is busy building a video"))
	}
	e.buffer = nil
	e.state = EncoderIdle
	return nil
}
