package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		want string
		typ  Type
	}{
		{want: "SessionStarted", typ: SessionStarted},
		{want: "ManifestsExchanged", typ: ManifestsExchanged},
		{want: "DiffComputed", typ: DiffComputed},
		{want: "FileSent", typ: FileSent},
		{want: "FileReceived", typ: FileReceived},
		{want: "FileRejected", typ: FileRejected},
		{want: "SessionCompleted", typ: SessionCompleted},
		{want: "SessionFailed", typ: SessionFailed},
		{want: "ReconcileComplete", typ: ReconcileComplete},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.String())
		})
	}
}

func TestTypeStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", Type(999).String())
	assert.Equal(t, "Unknown", Type(0).String())
	assert.Equal(t, "Unknown", Type(-1).String())
}

func TestEventZeroValue(t *testing.T) {
	var e Event
	assert.Equal(t, Type(0), e.Type)
	assert.True(t, e.Timestamp.IsZero())
	assert.Empty(t, e.Path)
	assert.Zero(t, e.Size)
	assert.Zero(t, e.Version)
	require.NoError(t, e.Error)
}

func TestSinkEmitStampsTimestamp(t *testing.T) {
	ch := make(chan Event, 1)
	before := time.Now()
	Sink(ch).Emit(Event{Type: FileReceived, Path: "a.txt", Version: 3})

	got := <-ch
	assert.Equal(t, FileReceived, got.Type)
	assert.Equal(t, uint64(3), got.Version)
	assert.False(t, got.Timestamp.Before(before))
}

func TestSinkEmitKeepsTimestamp(t *testing.T) {
	ch := make(chan Event, 1)
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	Sink(ch).Emit(Event{Type: FileSent, Timestamp: ts})
	assert.Equal(t, ts, (<-ch).Timestamp)
}

func TestSinkDropsWhenFull(t *testing.T) {
	ch := make(chan Event, 1)
	s := Sink(ch)
	s.Emit(Event{Type: FileSent})
	s.Emit(Event{Type: FileRejected, Error: errors.New("dropped")})

	require.Len(t, ch, 1)
	assert.Equal(t, FileSent, (<-ch).Type)
}

func TestNilSinkDrops(t *testing.T) {
	var s Sink
	assert.NotPanics(t, func() { s.Emit(Event{Type: SessionStarted}) })
}
