package proto_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsync/internal/proto"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		frame proto.Frame
	}{
		{
			name:  "hello frame",
			frame: proto.Frame{MsgType: proto.MsgHello, Payload: []byte("hello")},
		},
		{
			name:  "file data",
			frame: proto.Frame{MsgType: proto.MsgFileData, Payload: bytes.Repeat([]byte("x"), 1024)},
		},
		{
			name:  "empty payload",
			frame: proto.Frame{MsgType: proto.MsgFileEnd},
		},
		{
			name:  "full data chunk",
			frame: proto.Frame{MsgType: proto.MsgFileData, Payload: bytes.Repeat([]byte("a"), proto.DataChunkSize)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, proto.WriteFrame(&buf, tt.frame))
			assert.Equal(t, proto.FrameHeaderSize+len(tt.frame.Payload), buf.Len())

			got, err := proto.ReadFrame(&buf)
			require.NoError(t, err)
			assert.Equal(t, proto.SyncStream, got.StreamID)
			assert.Equal(t, tt.frame.MsgType, got.MsgType)
			assert.Equal(t, tt.frame.Payload, got.Payload)
		})
	}
}

func TestFrameOversizedRejected(t *testing.T) {
	t.Parallel()

	f := proto.Frame{
		MsgType: proto.MsgFileData,
		Payload: make([]byte, proto.MaxFrameSize),
	}

	var buf bytes.Buffer
	err := proto.WriteFrame(&buf, f)
	require.ErrorIs(t, err, proto.ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	t.Parallel()

	var header [proto.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], proto.MaxFrameSize)
	header[8] = proto.MsgFileData

	_, err := proto.ReadFrame(bytes.NewReader(header[:]))
	require.ErrorIs(t, err, proto.ErrFrameTooLarge)
}

func TestReadFrameRejectsUndersizedHeader(t *testing.T) {
	t.Parallel()

	var header [proto.FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], 3)

	_, err := proto.ReadFrame(bytes.NewReader(header[:]))
	require.Error(t, err)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, proto.WriteFrame(&buf, proto.Frame{MsgType: proto.MsgFileData, Payload: []byte("0123456789")}))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := proto.ReadFrame(bytes.NewReader(truncated))
	require.Error(t, err)
}

func TestFrameMultipleRoundTrips(t *testing.T) {
	t.Parallel()

	frames := []proto.Frame{
		{MsgType: proto.MsgHello, Payload: []byte("hi")},
		{MsgType: proto.MsgManifestChunk, Payload: []byte("chunk")},
		{MsgType: proto.MsgManifestEnd, Payload: []byte("end")},
	}

	var buf bytes.Buffer
	for _, f := range frames {
		require.NoError(t, proto.WriteFrame(&buf, f))
	}

	for _, want := range frames {
		got, err := proto.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want.MsgType, got.MsgType)
		assert.Equal(t, want.Payload, got.Payload)
	}
}
