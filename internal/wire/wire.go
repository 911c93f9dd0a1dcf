// Package wire frames a composed envelope for byte-oriented stores: a
// fixed magic/version header, a flags byte telling the decoder which
// optional fields follow, then those fields, then a length-prefixed
// payload. A bad magic or version byte is treated as corruption, never as
// a silent zero value — callers self-heal by deleting the offending entry.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

const version byte = 1

var (
	ErrCorrupt = errors.New("casloader: corrupt envelope frame")
	magic4     = [...]byte{'C', 'A', 'S', 'L'}
)

const (
	flagVersion      byte = 1 << 0
	flagTTL          byte = 1 << 1
	flagCachedObject byte = 1 << 2
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Frame is the on-wire shape of one composed envelope value. Payload is
// the already-encoded innermost bytes: the domain value, or a
// cached-object marker's State, depending on IsCachedObject.
type Frame struct {
	HasVersion     bool
	Version        uint64
	HasTTL         bool
	Expiry         float64
	IsCachedObject bool
	MarkerType     string
	Payload        []byte
}

// Encode serializes f to its wire form:
//
//	magic(4) | ver(1) | flags(1) | [version(u64 be)] | [expiry(u64 be, float bits)] |
//	[markerTypeLen(u32 be) markerType] | payloadLen(u32 be) | payload
func Encode(f Frame) []byte {
	var flags byte
	if f.HasVersion {
		flags |= flagVersion
	}
	if f.HasTTL {
		flags |= flagTTL
	}
	if f.IsCachedObject {
		flags |= flagCachedObject
	}

	var buf bytes.Buffer
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(flags)

	var u8 [8]byte
	if f.HasVersion {
		binary.BigEndian.PutUint64(u8[:], f.Version)
		buf.Write(u8[:])
	}
	if f.HasTTL {
		binary.BigEndian.PutUint64(u8[:], math.Float64bits(f.Expiry))
		buf.Write(u8[:])
	}
	if f.IsCachedObject {
		writeBytes(&buf, []byte(f.MarkerType))
	}
	writeBytes(&buf, f.Payload)
	return buf.Bytes()
}

// Decode parses a Frame previously produced by Encode, returning
// ErrCorrupt for any truncation, bad magic, bad version, length field
// that would read past the end of b, or trailing bytes after the payload.
func Decode(b []byte) (Frame, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Frame{}, ErrCorrupt
	}

	flags := b[5]
	off := 6

	var f Frame
	f.HasVersion = flags&flagVersion != 0
	f.HasTTL = flags&flagTTL != 0
	f.IsCachedObject = flags&flagCachedObject != 0

	if f.HasVersion {
		if off+8 > len(b) {
			return Frame{}, ErrCorrupt
		}
		f.Version = binary.BigEndian.Uint64(b[off : off+8])
		off += 8
	}
	if f.HasTTL {
		if off+8 > len(b) {
			return Frame{}, ErrCorrupt
		}
		f.Expiry = math.Float64frombits(binary.BigEndian.Uint64(b[off : off+8]))
		off += 8
	}
	if f.IsCachedObject {
		mt, n, err := readBytes(b[off:])
		if err != nil {
			return Frame{}, err
		}
		f.MarkerType = string(mt)
		off += n
	}

	payload, n, err := readBytes(b[off:])
	if err != nil {
		return Frame{}, err
	}
	if off+n != len(b) {
		return Frame{}, ErrCorrupt
	}
	f.Payload = payload
	return f, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(b)))
	buf.Write(u4[:])
	buf.Write(b)
}

func readBytes(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	if n < 0 || 4+n > len(b) { // overflow-safe bound check
		return nil, 0, ErrCorrupt
	}
	return b[4 : 4+n], 4 + n, nil
}
