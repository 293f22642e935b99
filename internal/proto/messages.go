package proto

import (
	"errors"
	"fmt"
)

//go:generate msgp -io=false -tests=false

// Protocol version. Bump only on breaking wire changes.
const ProtocolVersion = 1

// CapZstd is advertised in Hello by peers willing to compress the channel.
const CapZstd = "zstd"

// Message type constants for the beamsync wire protocol.
const (
	MsgHello byte = 0x01

	// Manifest exchange: one or more chunks, then an end marker carrying the
	// entry count and manifest fingerprint.
	MsgManifestChunk byte = 0x10
	MsgManifestEnd   byte = 0x11

	// Request: one or more chunks of paths, then an end marker.
	MsgRequestChunk byte = 0x12
	MsgRequestEnd   byte = 0x13

	// File transfer: header, zero or more data frames, end marker.
	MsgFileHeader byte = 0x20
	MsgFileData   byte = 0x21
	MsgFileEnd    byte = 0x22

	// Done closes one side's send stream.
	MsgDone byte = 0x30

	MsgError byte = 0xFF
)

var msgNames = map[byte]string{
	MsgHello:         "Hello",
	MsgManifestChunk: "ManifestChunk",
	MsgManifestEnd:   "ManifestEnd",
	MsgRequestChunk:  "RequestChunk",
	MsgRequestEnd:    "RequestEnd",
	MsgFileHeader:    "FileHeader",
	MsgFileData:      "FileData",
	MsgFileEnd:       "FileEnd",
	MsgDone:          "Done",
	MsgError:         "Error",
}

// MsgName returns a readable name for a message type.
func MsgName(t byte) string {
	if n, ok := msgNames[t]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", t)
}

var (
	// ErrUnexpectedMessage is returned when a frame's type does not match
	// what the session state allows.
	ErrUnexpectedMessage = errors.New("unexpected message")

	// ErrMalformed is returned when a payload does not decode or is missing
	// required fields.
	ErrMalformed = errors.New("malformed message")
)

// RemoteError is an Error message received from the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "peer error: " + e.Message
}

// Message is implemented by every msgp-encoded payload.
type Message interface {
	MarshalMsg(b []byte) ([]byte, error)
	UnmarshalMsg(b []byte) ([]byte, error)
}

// validator is implemented by messages with required fields. Decode calls
// it after unmarshalling.
type validator interface {
	validate() error
}

// Hello opens a session in both directions.
type Hello struct {
	NodeID       string   `msg:"node_id"`
	Capabilities []string `msg:"capabilities"`
	Version      int      `msg:"version"`
}

// Has reports whether the peer advertised capability c.
func (h Hello) Has(c string) bool {
	for _, x := range h.Capabilities {
		if x == c {
			return true
		}
	}
	return false
}

func (h *Hello) validate() error {
	if h.Version <= 0 || h.NodeID == "" {
		return errors.New("hello needs version and node_id")
	}
	return nil
}

// ManifestEntry is the wire form of one manifest record. Modification times
// stay local.
type ManifestEntry struct {
	Path    string `msg:"path"`
	Digest  string `msg:"digest"`
	Version uint64 `msg:"version"`
}

// ManifestChunk carries a batch of manifest entries.
type ManifestChunk struct {
	Entries []ManifestEntry `msg:"entries"`
}

// ManifestEnd terminates the manifest stream.
type ManifestEnd struct {
	Fingerprint string `msg:"fingerprint"`
	Count       uint64 `msg:"count"`
}

func (e *ManifestEnd) validate() error {
	if e.Fingerprint == "" {
		return errors.New("manifest end without fingerprint")
	}
	return nil
}

// RequestChunk carries a batch of requested paths.
type RequestChunk struct {
	Paths []string `msg:"paths"`
}

// RequestEnd terminates the request stream.
type RequestEnd struct {
	Count uint64 `msg:"count"`
}

// FileHeader precedes exactly Size bytes of FileData for one file.
type FileHeader struct {
	Path    string `msg:"path"`
	Digest  string `msg:"digest"`
	Size    uint64 `msg:"size"`
	Version uint64 `msg:"version"`
}

func (h *FileHeader) validate() error {
	if h.Path == "" {
		return errors.New("file header without path")
	}
	return nil
}

// Done closes one side's send stream.
type Done struct {
	Sent   uint64 `msg:"sent"`
	Failed uint64 `msg:"failed"`
}

func (d *Done) validate() error {
	if d.Failed > d.Sent {
		return fmt.Errorf("done reports %d failed of %d sent", d.Failed, d.Sent)
	}
	return nil
}

// ErrorMsg reports a session-fatal error to the peer before closing.
type ErrorMsg struct {
	Message string `msg:"message"`
}
