package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	SessionStarted Type = iota + 1
	ManifestsExchanged
	DiffComputed
	FileSent
	FileReceived
	FileRejected
	SessionCompleted
	SessionFailed
	ReconcileComplete
)

var typeNames = [...]string{
	SessionStarted:     "SessionStarted",
	ManifestsExchanged: "ManifestsExchanged",
	DiffComputed:       "DiffComputed",
	FileSent:           "FileSent",
	FileReceived:       "FileReceived",
	FileRejected:       "FileRejected",
	SessionCompleted:   "SessionCompleted",
	SessionFailed:      "SessionFailed",
	ReconcileComplete:  "ReconcileComplete",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress event from a sync session or the store.
type Event struct {
	Type      Type
	Timestamp time.Time
	Session   string // session ID
	Peer      string // peer address
	Path      string // relative path
	Size      int64  // file size
	Version   uint64 // file version
	Send      int    // files to send (DiffComputed)
	Request   int    // files to request (DiffComputed)
	Error     error
}

// Sink delivers events without blocking the sender. A nil Sink drops
// everything; when the channel is full the event is dropped.
type Sink chan<- Event

// Emit stamps e and delivers it if there is room.
func (s Sink) Emit(e Event) {
	if s == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case s <- e:
	default:
	}
}
