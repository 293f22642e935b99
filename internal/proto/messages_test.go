package proto_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"

	"github.com/bamsammich/beamsync/internal/digest"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
)

func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		orig    proto.Message
		decoded proto.Message
		name    string
	}{
		{
			name:    "hello",
			orig:    &proto.Hello{Version: proto.ProtocolVersion, NodeID: "n1", Capabilities: []string{proto.CapZstd}},
			decoded: &proto.Hello{},
		},
		{
			name: "manifest chunk",
			orig: &proto.ManifestChunk{Entries: []proto.ManifestEntry{
				{Path: "a.txt", Version: 1, Digest: "d1"},
				{Path: "docs/readme.txt", Version: 1 << 40, Digest: "d2"},
			}},
			decoded: &proto.ManifestChunk{},
		},
		{
			name:    "manifest end",
			orig:    &proto.ManifestEnd{Count: 2, Fingerprint: "0123456789abcdef"},
			decoded: &proto.ManifestEnd{},
		},
		{
			name:    "request chunk",
			orig:    &proto.RequestChunk{Paths: []string{"a", "b/c"}},
			decoded: &proto.RequestChunk{},
		},
		{
			name:    "request end",
			orig:    &proto.RequestEnd{Count: 2},
			decoded: &proto.RequestEnd{},
		},
		{
			name:    "file header",
			orig:    &proto.FileHeader{Path: "docs/readme.txt", Size: 4096, Version: 3, Digest: "abc"},
			decoded: &proto.FileHeader{},
		},
		{
			name:    "done",
			orig:    &proto.Done{Sent: 5, Failed: 1},
			decoded: &proto.Done{},
		},
		{
			name:    "error",
			orig:    &proto.ErrorMsg{Message: "boom"},
			decoded: &proto.ErrorMsg{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := tt.orig.MarshalMsg(nil)
			require.NoError(t, err)

			rest, err := tt.decoded.UnmarshalMsg(data)
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Equal(t, tt.orig, tt.decoded)
		})
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	t.Parallel()

	// A newer peer sending an extra field.
	var buf []byte
	buf = msgp.AppendMapHeader(buf, 5)
	buf = msgp.AppendString(buf, "path")
	buf = msgp.AppendString(buf, "a.txt")
	buf = msgp.AppendString(buf, "future_field")
	buf = msgp.AppendMapHeader(buf, 1)
	buf = msgp.AppendString(buf, "nested")
	buf = msgp.AppendBool(buf, true)
	buf = msgp.AppendString(buf, "size")
	buf = msgp.AppendUint64(buf, 7)
	buf = msgp.AppendString(buf, "version")
	buf = msgp.AppendUint64(buf, 2)
	buf = msgp.AppendString(buf, "digest")
	buf = msgp.AppendString(buf, "d")

	var decoded proto.FileHeader
	_, err := decoded.UnmarshalMsg(buf)
	require.NoError(t, err)
	assert.Equal(t, proto.FileHeader{Path: "a.txt", Size: 7, Version: 2, Digest: "d"}, decoded)
}

func TestDecodeRequiredFields(t *testing.T) {
	t.Parallel()

	empty := msgp.AppendMapHeader(nil, 0)
	tests := []struct {
		msg     proto.Message
		name    string
		payload []byte
		msgType byte
	}{
		{name: "hello", msgType: proto.MsgHello, payload: empty, msg: &proto.Hello{}},
		{name: "manifest end", msgType: proto.MsgManifestEnd, payload: empty, msg: &proto.ManifestEnd{}},
		{name: "file header", msgType: proto.MsgFileHeader, payload: empty, msg: &proto.FileHeader{}},
		{
			name:    "done",
			msgType: proto.MsgDone,
			payload: mustMarshal(t, &proto.Done{Sent: 1, Failed: 2}),
			msg:     &proto.Done{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := proto.Decode(proto.Frame{MsgType: tt.msgType, Payload: tt.payload}, tt.msg)
			require.ErrorIs(t, err, proto.ErrMalformed)
		})
	}

	// Messages without required fields accept an empty map.
	require.NoError(t, proto.Decode(proto.Frame{MsgType: proto.MsgRequestEnd, Payload: empty}, &proto.RequestEnd{}))
}

func TestDecodeRejectsOversizedArrayHeader(t *testing.T) {
	t.Parallel()

	huge := func(key string) []byte {
		b := msgp.AppendMapHeader(nil, 1)
		b = msgp.AppendString(b, key)
		return msgp.AppendArrayHeader(b, 0xFFFFFFFF)
	}

	tests := []struct {
		msg     proto.Message
		name    string
		payload []byte
		msgType byte
	}{
		{name: "request chunk", msgType: proto.MsgRequestChunk, payload: huge("paths"), msg: &proto.RequestChunk{}},
		{name: "manifest chunk", msgType: proto.MsgManifestChunk, payload: huge("entries"), msg: &proto.ManifestChunk{}},
		{name: "hello", msgType: proto.MsgHello, payload: huge("capabilities"), msg: &proto.Hello{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := proto.Decode(proto.Frame{MsgType: tt.msgType, Payload: tt.payload}, tt.msg)
			require.ErrorIs(t, err, proto.ErrMalformed)
			require.ErrorIs(t, err, msgp.ErrShortBytes)
		})
	}
}

func mustMarshal(t *testing.T, m proto.Message) []byte {
	t.Helper()
	b, err := m.MarshalMsg(nil)
	require.NoError(t, err)
	return b
}

func TestWrongFieldTypeRejected(t *testing.T) {
	t.Parallel()

	// Version as a string, the way a textual encoding would carry it.
	var buf []byte
	buf = msgp.AppendMapHeader(buf, 3)
	buf = msgp.AppendString(buf, "path")
	buf = msgp.AppendString(buf, "a.txt")
	buf = msgp.AppendString(buf, "version")
	buf = msgp.AppendString(buf, "10")
	buf = msgp.AppendString(buf, "digest")
	buf = msgp.AppendString(buf, "d")

	var entry proto.ManifestEntry
	_, err := entry.UnmarshalMsg(buf)
	require.Error(t, err)
}

func TestTruncatedPayloadRejected(t *testing.T) {
	t.Parallel()

	data, err := (&proto.FileHeader{Path: "a", Size: 1, Version: 1, Digest: "d"}).MarshalMsg(nil)
	require.NoError(t, err)

	var h proto.FileHeader
	_, err = h.UnmarshalMsg(data[:len(data)-2])
	require.Error(t, err)
}

func TestHelloHas(t *testing.T) {
	t.Parallel()

	h := proto.Hello{Capabilities: []string{"other", proto.CapZstd}}
	assert.True(t, h.Has(proto.CapZstd))
	assert.False(t, proto.Hello{}.Has(proto.CapZstd))
}

func TestManifestChunks(t *testing.T) {
	t.Parallel()

	assert.Empty(t, proto.ManifestChunks(manifest.Manifest{}))

	m := make(manifest.Manifest)
	n := proto.ChunkEntries*2 + 5
	for i := range n {
		p := fmt.Sprintf("f%05d", i)
		m[p] = manifest.FileRecord{Path: p, Version: uint64(i + 1), Digest: digest.Bytes([]byte(p))}
	}

	chunks := proto.ManifestChunks(m)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], proto.ChunkEntries)
	assert.Len(t, chunks[2], 5)
	assert.Equal(t, "f00000", chunks[0][0].Path)

	// Chunks reassemble into the same manifest.
	got := make(manifest.Manifest)
	for _, c := range chunks {
		require.NoError(t, proto.AddEntries(got, c))
	}
	assert.Equal(t, manifest.Fingerprint(m), manifest.Fingerprint(got))
}

func TestAddEntriesRejectsBadEntries(t *testing.T) {
	t.Parallel()

	d := digest.Bytes([]byte("x"))

	err := proto.AddEntries(make(manifest.Manifest), []proto.ManifestEntry{{Path: "../escape", Version: 1, Digest: d}})
	require.ErrorIs(t, err, proto.ErrMalformed)
	require.ErrorIs(t, err, manifest.ErrUnsafePath)

	err = proto.AddEntries(make(manifest.Manifest), []proto.ManifestEntry{
		{Path: "a", Version: 1, Digest: d},
		{Path: "./a", Version: 2, Digest: d},
	})
	require.ErrorIs(t, err, proto.ErrMalformed)

	err = proto.AddEntries(make(manifest.Manifest), []proto.ManifestEntry{{Path: "a", Version: 1, Digest: "d1"}})
	require.ErrorIs(t, err, proto.ErrMalformed)

	err = proto.AddEntries(make(manifest.Manifest), []proto.ManifestEntry{{Path: "a", Version: 0, Digest: d}})
	require.ErrorIs(t, err, proto.ErrMalformed)
}

func TestPathChunks(t *testing.T) {
	t.Parallel()

	assert.Empty(t, proto.PathChunks(nil))

	paths := make([]string, proto.ChunkEntries+1)
	chunks := proto.PathChunks(paths)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[1], 1)
}

func TestHeaderRecord(t *testing.T) {
	t.Parallel()

	rec := manifest.FileRecord{Path: "p", Version: 4, Digest: "d", ModifiedAt: 9}
	h := proto.HeaderFor(rec, 12)
	assert.Equal(t, uint64(12), h.Size)
	assert.Equal(t, rec, h.Record(9))
}
