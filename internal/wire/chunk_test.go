package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeChunk_V11_SingleChunk(t *testing.T) {
	payload := []byte("hello velocystream")
	h := ChunkHeader{IsFirst: true, ChunkXValue: 1, MessageID: 42, MessageLength: uint64(len(payload))}

	buf := EncodeChunk(V11, h, payload)
	require.Equal(t, HeaderSize(V11, true)+len(payload), len(buf))

	decoded, n, err := DecodeChunkHeader(V11, true, buf)
	require.NoError(t, err)
	require.Equal(t, 24, n)
	require.True(t, decoded.IsFirst)
	require.EqualValues(t, 1, decoded.ChunkXValue)
	require.EqualValues(t, 42, decoded.MessageID)
	require.EqualValues(t, len(payload), decoded.MessageLength)
	require.Equal(t, payload, buf[n:])
}

func TestEncodeDecodeChunk_V11_MultiChunk(t *testing.T) {
	first := EncodeChunk(V11, ChunkHeader{IsFirst: true, ChunkXValue: 3, MessageID: 7, MessageLength: 100}, []byte("abc"))
	mid := EncodeChunk(V11, ChunkHeader{IsFirst: false, ChunkXValue: 1, MessageID: 7}, []byte("defgh"))
	last := EncodeChunk(V11, ChunkHeader{IsFirst: false, ChunkXValue: 2, MessageID: 7}, []byte("ij"))

	fh, fn, err := DecodeChunkHeader(V11, true, first)
	require.NoError(t, err)
	require.True(t, fh.IsFirst)
	require.EqualValues(t, 3, fh.ChunkXValue)
	require.Equal(t, "abc", string(first[fn:]))

	mh, mn, err := DecodeChunkHeader(V11, false, mid)
	require.NoError(t, err)
	require.False(t, mh.IsFirst)
	require.EqualValues(t, 1, mh.ChunkXValue)
	require.Equal(t, "defgh", string(mid[mn:]))

	lh, ln, err := DecodeChunkHeader(V11, false, last)
	require.NoError(t, err)
	require.False(t, lh.IsFirst)
	require.EqualValues(t, 2, lh.ChunkXValue)
	require.Equal(t, "ij", string(last[ln:]))
}

func TestEncodeDecodeChunk_V10Legacy(t *testing.T) {
	payload := []byte("legacy payload")
	h := ChunkHeader{IsFirst: true, ChunkXValue: 1, MessageID: 99}

	buf := EncodeChunk(V10, h, payload)
	require.Equal(t, 12+len(payload), len(buf))

	decoded, n, err := DecodeChunkHeader(V10, true, buf)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.True(t, decoded.IsFirst)
	require.EqualValues(t, 99, decoded.MessageID)
}

func TestDecodeChunkHeader_ShortBuffer(t *testing.T) {
	_, _, err := DecodeChunkHeader(V11, true, []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestPayloadLength(t *testing.T) {
	h := ChunkHeader{Length: 24 + 10, IsFirst: true}
	require.Equal(t, 10, h.PayloadLength(V11))
}
