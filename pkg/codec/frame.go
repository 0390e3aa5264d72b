// Package codec implements the wire framing the server and client share:
// a 4-byte big-endian length prefix followed by a JSON payload. Grounded
// on the teacher's tcp.go framing ([1 byte codec][4 byte length][payload]
// around a protobuf envelope) but simplified to one wire format, so the
// codec byte is dropped and the payload is plain JSON instead of a
// generated protobuf message.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// DefaultMaxFrameSize bounds how large a single frame's payload may be,
// so a malformed or hostile length prefix can't make a reader allocate
// without bound.
const DefaultMaxFrameSize = 64 * 1024 * 1024

// Frame is one length-prefixed message: a 4-byte big-endian length
// followed by that many bytes of JSON.
type Frame struct {
	Payload []byte
}

// WriteFrame marshals v to JSON and writes it to w as one frame.
func WriteFrame(w io.Writer, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return vidqrerr.Invalid("codec.WriteFrame", err)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return vidqrerr.Resource("codec.WriteFrame", err)
	}
	if _, err := w.Write(data); err != nil {
		return vidqrerr.Resource("codec.WriteFrame", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and unmarshals its
// JSON payload into v. maxFrameSize of 0 uses DefaultMaxFrameSize.
func ReadFrame(r io.Reader, maxFrameSize uint32, v interface{}) error {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err // callers check for io.EOF specially; do not wrap
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return vidqrerr.Invalid("codec.ReadFrame", fmt.Errorf("frame of %d bytes exceeds max %d", length, maxFrameSize))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return vidqrerr.Resource("codec.ReadFrame", fmt.Errorf("read frame payload: %w", err))
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return vidqrerr.Corrupt("codec.ReadFrame", fmt.Errorf("decode frame payload: %w", err))
	}
	return nil
}
