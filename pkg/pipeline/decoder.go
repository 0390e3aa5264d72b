package pipeline

import (
	"github.com/vidqr/vidqr/pkg/qr"
	"github.com/vidqr/vidqr/pkg/videocodec"
)

// Decoder reads a video of QR frames back into text. Per-frame decode
// failures are dropped silently (best-effort recovery, §7.5);
// catastrophic failures — the file is missing, or has no video track —
// surface to the caller.
type Decoder struct {
	qrGen    qr.Generator
	videoDec videocodec.Decoder
}

func NewDecoder(qrGen qr.Generator, videoDec videocodec.Decoder) *Decoder {
	return &Decoder{qrGen: qrGen, videoDec: videoDec}
}

// Retrieve decodes every frame in path, in order, dropping any frame
// that fails to decode.
func (d *Decoder) Retrieve(path string) ([]string, error) {
	return d.retrieve(path, nil)
}

// RetrieveFrames decodes only the given frame numbers, in the order
// extracted.
func (d *Decoder) RetrieveFrames(path string, frameIndices []int) ([]string, error) {
	return d.retrieve(path, frameIndices)
}

func (d *Decoder) retrieve(path string, frameIndices []int) ([]string, error) {
	frames, err := d.videoDec.ExtractFrames(path, frameIndices)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, f := range frames {
		text, ok := decodeFrame(d.qrGen, f)
		if !ok {
			continue
		}
		results = append(results, text)
	}
	return results, nil
}

// decodeFrame recovers the QR grid from an arbitrary-sized RGB frame
// by trying each supported version's native grid size as a downsample
// target and accepting the first one that decodes cleanly. This is
// necessary because the frame was nearest-neighbor scaled up to an
// arbitrary video frame size at encode time, so the decoder has no a
// priori way to know which version produced it — but a wrong guess
// fails the embedded length/CRC framing check inside qr.Decode, so a
// false-positive match is effectively impossible.
func decodeFrame(g qr.Generator, f videocodec.Frame) (string, bool) {
	for version := qr.MinVersion; version <= qr.MaxVersion; version++ {
		side := qr.SideForVersion(version)
		if side > f.Width || side > f.Height {
			continue
		}
		gray := downsampleToGray(f.RGB, f.Width, f.Height, side, side)
		text, err := g.Decode(qr.Image{Width: side, Height: side, Pixels: gray})
		if err == nil {
			return text, true
		}
	}
	return "", false
}
