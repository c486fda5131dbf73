// Package wire encodes and decodes VelocyStream chunk headers: the framing
// layer that lets one VST message span one or more TCP-sized chunks
// (fuerte spec §4.5).
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a buffer is too small to hold a complete
// chunk header for the requested version.
var ErrShortBuffer = errors.New("wire: buffer shorter than chunk header")

// Version selects which chunk header layout to use.
type Version int

const (
	// V11 is the current VST 1.1 layout: a 24-byte header on the first
	// chunk of a message (length, chunkX, message id, total message
	// length) and a 16-byte header on every following chunk (no total
	// length field, since it was already sent once).
	V11 Version = iota
	// V10 is the legacy VST 1.0 layout. The original project's 1.0
	// framing packs chunk length and message id without ever sending a
	// total-length field; every chunk, first or not, uses the same
	// 12-byte header. The 1.0 byte layout is not fully documented; this
	// implements the simplest self-consistent reading of it and is treated
	// as a legacy, best-effort path (open question, spec §9).
	V10
)

// HeaderSize returns the on-wire header length for this version and
// position (isFirst only matters for V11).
func HeaderSize(v Version, isFirst bool) int {
	switch v {
	case V10:
		return 12
	default:
		if isFirst {
			return 24
		}
		return 16
	}
}

// ChunkHeader is the decoded form of a chunk's framing fields.
type ChunkHeader struct {
	// Length is the total chunk length on the wire, header included.
	Length uint32
	// IsFirst marks the first chunk of a message.
	IsFirst bool
	// ChunkXValue is, for the first chunk, the total number of chunks in
	// the message; for any other chunk, its index (spec §4.5).
	ChunkXValue uint32
	MessageID   uint64
	// MessageLength is the total uncompressed message length. Only
	// populated when IsFirst is true and the version carries it (V11).
	MessageLength uint64
}

// PayloadLength returns how many payload bytes follow the header in this
// chunk, given the chunk's total Length.
func (h ChunkHeader) PayloadLength(v Version) int {
	return int(h.Length) - HeaderSize(v, h.IsFirst)
}

// EncodeChunk writes header and payload into a single buffer ready to be
// written to the socket.
func EncodeChunk(v Version, h ChunkHeader, payload []byte) []byte {
	headerSize := HeaderSize(v, h.IsFirst)
	total := headerSize + len(payload)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))

	switch v {
	case V10:
		// 12-byte legacy header: length, chunkX (chunk index/count shifted
		// left one bit, is-first flag in the low bit), message id.
		chunkX := h.ChunkXValue << 1
		if h.IsFirst {
			chunkX |= 1
		}
		binary.LittleEndian.PutUint32(buf[4:8], chunkX)
		// The legacy 12-byte header only has room for a 4-byte message id
		// (length(4)+chunkX(4)+messageID(4)); ids above 32 bits cannot be
		// represented on this wire format either.
		copy(buf[8:12], uint64ToLE4(h.MessageID))
	default:
		chunkX := h.ChunkXValue << 1
		if h.IsFirst {
			chunkX |= 1
		}
		binary.LittleEndian.PutUint32(buf[4:8], chunkX)
		binary.LittleEndian.PutUint64(buf[8:16], h.MessageID)
		if h.IsFirst {
			binary.LittleEndian.PutUint64(buf[16:24], h.MessageLength)
		}
	}

	copy(buf[headerSize:], payload)
	return buf
}

func uint64ToLE4(v uint64) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// DecodeChunkHeader parses a chunk header from buf. maybeFirst tells the
// decoder whether this could be the first chunk of a new message (needed
// for V11, which has two header sizes); V10 headers are a fixed size
// regardless. It returns the decoded header and the number of bytes the
// header occupied.
func DecodeChunkHeader(v Version, maybeFirst bool, buf []byte) (ChunkHeader, int, error) {
	if len(buf) < 8 {
		return ChunkHeader{}, 0, ErrShortBuffer
	}

	length := binary.LittleEndian.Uint32(buf[0:4])
	chunkX := binary.LittleEndian.Uint32(buf[4:8])
	isFirst := chunkX&1 != 0

	switch v {
	case V10:
		if len(buf) < 12 {
			return ChunkHeader{}, 0, ErrShortBuffer
		}
		msgID := uint64(binary.LittleEndian.Uint32(buf[8:12]))
		return ChunkHeader{
			Length:      length,
			IsFirst:     isFirst,
			ChunkXValue: chunkX >> 1,
			MessageID:   msgID,
		}, 12, nil
	default:
		if !maybeFirst {
			isFirst = false
		}
		headerSize := 16
		if isFirst {
			headerSize = 24
		}
		if len(buf) < headerSize {
			return ChunkHeader{}, 0, ErrShortBuffer
		}
		msgID := binary.LittleEndian.Uint64(buf[8:16])
		h := ChunkHeader{
			Length:      length,
			IsFirst:     isFirst,
			ChunkXValue: chunkX >> 1,
			MessageID:   msgID,
		}
		if isFirst {
			h.MessageLength = binary.LittleEndian.Uint64(buf[16:24])
		}
		return h, headerSize, nil
	}
}
