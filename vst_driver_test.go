package fuerte

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/0xflotus/fuerte-go/internal/vpack"
	"github.com/0xflotus/fuerte-go/internal/wire"
)

// buildResponseHeaderForTest constructs a response header buffer the way a
// server would, so decodeVSTResponseHeader (the client-side half) can be
// exercised without a real ArangoDB server.
func buildResponseHeaderForTest(t *testing.T, statusCode int, meta map[string]string) []byte {
	t.Helper()
	w := vpack.NewWriter()
	w.Array(4)
	w.Int(1)
	w.Int(vstMessageTypeResponse)
	w.Int(int64(statusCode))
	w.StringMap(meta)
	return w.Bytes()
}

func TestChunkMessage_SingleChunk(t *testing.T) {
	data := []byte("small message")
	chunks := chunkMessage(wire.V11, 1024, 7, data)
	require.Len(t, chunks, 1)

	hdr, hn, err := wire.DecodeChunkHeader(wire.V11, true, chunks[0])
	require.NoError(t, err)
	require.True(t, hdr.IsFirst)
	require.EqualValues(t, 1, hdr.ChunkXValue)
	require.EqualValues(t, 7, hdr.MessageID)
	require.Equal(t, data, chunks[0][hn:])
}

func TestChunkMessage_MultiChunk(t *testing.T) {
	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	chunks := chunkMessage(wire.V11, 40, 3, data)
	require.Greater(t, len(chunks), 1)

	var reassembled []byte
	for i, chunk := range chunks {
		hdr, hn, err := wire.DecodeChunkHeader(wire.V11, true, chunk)
		require.NoError(t, err)
		require.EqualValues(t, 3, hdr.MessageID)
		if i == 0 {
			require.True(t, hdr.IsFirst)
			require.EqualValues(t, len(chunks), hdr.ChunkXValue)
			require.EqualValues(t, len(data), hdr.MessageLength)
		} else {
			require.False(t, hdr.IsFirst)
			require.EqualValues(t, i, hdr.ChunkXValue)
		}
		reassembled = append(reassembled, chunk[hn:]...)
	}
	require.Equal(t, data, reassembled)
}

func TestEncodeDecodeVSTRequestHeader_RoundTrip(t *testing.T) {
	req := NewRequest(Post, "/_api/document/col")
	req.Database = "mydb"
	req.AddParameter("returnNew", "true")
	req.SetHeader("x-test", "1")

	buf := encodeVSTRequestHeader(req)
	require.NotEmpty(t, buf)

	r := vpack.NewReader(buf)
	n, err := r.Array()
	require.NoError(t, err)
	require.Equal(t, 7, n)
	version, err := r.Int()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
	msgType, err := r.Int()
	require.NoError(t, err)
	require.EqualValues(t, vstMessageTypeRequest, msgType)
	db, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "mydb", db)
	verb, err := r.Int()
	require.NoError(t, err)
	require.EqualValues(t, Post, verb)
	path, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "/_api/document/col", path)
	params, err := r.Array()
	require.NoError(t, err)
	require.Equal(t, 1, params)
	pair, err := r.Array()
	require.NoError(t, err)
	require.Equal(t, 2, pair)
	key, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "returnNew", key)
	value, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "true", value)
	meta, err := r.StringMap()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"x-test": "1"}, meta)
	require.Equal(t, 0, r.Len())
}

func TestEncodeDecodeVSTResponseHeader_RoundTrip(t *testing.T) {
	w := buildResponseHeaderForTest(t, 200, map[string]string{"content-type": "application/json"})
	payload := []byte(`{"version":"3.11"}`)
	full := append(w, payload...)

	status, meta, body, err := decodeVSTResponseHeader(full)
	require.NoError(t, err)
	require.Equal(t, 200, status)
	require.Equal(t, "application/json", meta["content-type"])
	require.Equal(t, payload, body)
}
