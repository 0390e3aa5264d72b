// Package qr is a stand-in for the QR generator/decoder external
// collaborator: no QR-symbology library exists anywhere in the
// reference corpus this module was built from, and generating a real
// ISO/IEC 18004 symbol is out of scope, so this package implements the
// same generate/capabilities/decode/decodeBatch contract with a
// deterministic, fully round-trippable bit-matrix codec instead. Every
// frame is self-describing: its own pixels record the version and ECC
// level used to build it, so decode needs nothing but the image.
package qr

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vidqr/vidqr/pkg/vidqrerr"
)

// ECCLevel mirrors the four QR error-correction tiers. Here each tier
// maps to a repetition factor: more copies of every bit, more
// resilience to flipped pixels, less usable capacity.
type ECCLevel int

const (
	ECCLow ECCLevel = iota
	ECCMedium
	ECCQuartile
	ECCHigh
)

func (e ECCLevel) String() string {
	switch e {
	case ECCLow:
		return "L"
	case ECCMedium:
		return "M"
	case ECCQuartile:
		return "Q"
	case ECCHigh:
		return "H"
	default:
		return "unknown"
	}
}

func (e ECCLevel) valid() bool { return e >= ECCLow && e <= ECCHigh }

func (e ECCLevel) repetition() int {
	switch e {
	case ECCLow:
		return 1
	case ECCMedium:
		return 2
	case ECCQuartile:
		return 3
	case ECCHigh:
		return 4
	default:
		return 1
	}
}

const (
	minVersion = 1
	maxVersion = 40
	// headerBits holds the 6-bit version, 2-bit ECC level, and 32-bit
	// payload-bit-length fields every frame starts with.
	headerBits = 6 + 2 + 32
)

// Image is a grayscale raster: one byte per pixel, 0 = dark, 255 = light.
type Image struct {
	Width  int
	Height int
	Pixels []byte
}

// Capabilities describes what this generator can produce. MaxDataCapacity
// is the conservative floor — the capacity at the smallest version and
// strongest (most redundant) ECC level — so a caller that checks a
// payload against it once is guaranteed the payload fits regardless of
// which supported version/ECC combination is later chosen.
type Capabilities struct {
	MaxDataCapacity    int
	SupportedVersions  []int
	SupportedEccLevels []ECCLevel
}

// Generator produces and reads the bit-matrix codec frames.
type Generator struct{}

func NewGenerator() Generator { return Generator{} }

func (Generator) Capabilities() Capabilities {
	versions := make([]int, 0, maxVersion)
	for v := minVersion; v <= maxVersion; v++ {
		versions = append(versions, v)
	}
	return Capabilities{
		MaxDataCapacity:    DataCapacity(minVersion, ECCHigh),
		SupportedVersions:  versions,
		SupportedEccLevels: []ECCLevel{ECCLow, ECCMedium, ECCQuartile, ECCHigh},
	}
}

func sideForVersion(version int) int {
	return 21 + 4*(version-1)
}

// SideForVersion is the grid side length (pixels per axis) a frame at
// the given version uses. Exported so callers that must downsample an
// arbitrary-sized frame back to the native grid (e.g. after scaling
// pixels up to fill a video frame) can recover the grid dimensions.
func SideForVersion(version int) int { return sideForVersion(version) }

// MinVersion and MaxVersion bound the version range Generate accepts.
const (
	MinVersion = minVersion
	MaxVersion = maxVersion
)

// DataCapacity is the largest payload (in bytes, before the 8-byte
// length+checksum frame this package adds) that Generate can encode at
// the given version and ECC level.
func DataCapacity(version int, ecc ECCLevel) int {
	side := sideForVersion(version)
	rawBits := side*side - headerBits
	if rawBits <= 0 {
		return 0
	}
	usableBits := rawBits / ecc.repetition()
	usableBytes := usableBits / 8
	capacity := usableBytes - 8 // 4-byte length + 4-byte CRC32 framing
	if capacity < 0 {
		return 0
	}
	return capacity
}

// Generate renders text as a bit-matrix frame at the given version and
// ECC level. The frame is self-describing: version and ECC are stored
// in its first bits so Decode needs no external parameters.
func (Generator) Generate(text string, version int, ecc ECCLevel) (Image, error) {
	if version < minVersion || version > maxVersion {
		return Image{}, vidqrerr.Invalid("qr.Generate", fmt.Errorf("version %d out of range [%d,%d]", version, minVersion, maxVersion))
	}
	if !ecc.valid() {
		return Image{}, vidqrerr.Invalid("qr.Generate", fmt.Errorf("unsupported ECC level %d", int(ecc)))
	}

	data := []byte(text)
	capacity := DataCapacity(version, ecc)
	if len(data) > capacity {
		return Image{}, vidqrerr.Invalid("qr.Generate", fmt.Errorf("payload of %d bytes exceeds capacity %d for version %d / ECC %s", len(data), capacity, version, ecc))
	}

	framed := frame(data)
	payloadBits := bytesToBits(framed)
	repeated := repeatBits(payloadBits, ecc.repetition())

	side := sideForVersion(version)
	total := side * side
	if headerBits+len(repeated) > total {
		return Image{}, vidqrerr.Invalid("qr.Generate", fmt.Errorf("encoded payload does not fit version %d grid", version))
	}

	pixels := make([]byte, total)
	for i := range pixels {
		pixels[i] = 255
	}

	headerBitsSlice := make([]bool, 0, headerBits)
	headerBitsSlice = append(headerBitsSlice, intToBits(version, 6)...)
	headerBitsSlice = append(headerBitsSlice, intToBits(int(ecc), 2)...)
	headerBitsSlice = append(headerBitsSlice, intToBits(len(repeated), 32)...)
	writeBits(pixels, 0, headerBitsSlice)
	writeBits(pixels, headerBits, repeated)

	return Image{Width: side, Height: side, Pixels: pixels}, nil
}

// Decode recovers the text encoded in frame, reading version and ECC
// from the frame's own header bits.
func (Generator) Decode(img Image) (string, error) {
	if img.Width != img.Height || img.Width <= 0 {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("frame is not a square grid: %dx%d", img.Width, img.Height))
	}
	side := img.Width
	total := side * side
	if len(img.Pixels) != total {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("pixel count %d does not match %dx%d grid", len(img.Pixels), side, side))
	}
	if total < headerBits {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("grid too small to hold a header"))
	}

	header := readBits(img.Pixels, 0, headerBits)
	version := bitsToInt(header[0:6])
	ecc := ECCLevel(bitsToInt(header[6:8]))
	payloadBitLen := bitsToInt(header[8:40])

	if version < minVersion || version > maxVersion {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("header reports invalid version %d", version))
	}
	if !ecc.valid() {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("header reports invalid ECC level %d", int(ecc)))
	}
	if payloadBitLen < 0 || headerBits+payloadBitLen > total {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("header reports payload length %d that does not fit the grid", payloadBitLen))
	}
	rep := ecc.repetition()
	if payloadBitLen%rep != 0 {
		return "", vidqrerr.Corrupt("qr.Decode", fmt.Errorf("payload bit length %d is not a multiple of repetition factor %d", payloadBitLen, rep))
	}

	repeated := readBits(img.Pixels, headerBits, payloadBitLen)
	bits := collapseRepeatedBits(repeated, rep)
	raw := bitsToBytes(bits)

	data, err := unframe(raw)
	if err != nil {
		return "", vidqrerr.Corrupt("qr.Decode", err)
	}
	return string(data), nil
}

// DecodeResult pairs one frame's decode outcome; callers that want
// best-effort batch semantics can filter on Err themselves.
type DecodeResult struct {
	Text string
	Err  error
}

// DecodeBatch decodes every frame independently, preserving input order.
func (g Generator) DecodeBatch(frames []Image) []DecodeResult {
	results := make([]DecodeResult, len(frames))
	for i, f := range frames {
		text, err := g.Decode(f)
		results[i] = DecodeResult{Text: text, Err: err}
	}
	return results
}

func frame(data []byte) []byte {
	buf := make([]byte, 4+len(data)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:], data)
	binary.BigEndian.PutUint32(buf[4+len(data):], crc32.ChecksumIEEE(data))
	return buf
}

func unframe(raw []byte) ([]byte, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(raw))
	}
	length := binary.BigEndian.Uint32(raw[0:4])
	if int(4+length+4) > len(raw) {
		return nil, fmt.Errorf("declared length %d exceeds available %d bytes", length, len(raw)-8)
	}
	data := raw[4 : 4+length]
	want := binary.BigEndian.Uint32(raw[4+length : 8+length])
	if crc32.ChecksumIEEE(data) != want {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return data, nil
}
