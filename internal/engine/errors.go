package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrDigestMismatch is returned when received bytes do not hash to the
	// digest announced in their header.
	ErrDigestMismatch = errors.New("digest mismatch")

	// ErrNotRequested is returned for a file the peer sent without being
	// asked for it.
	ErrNotRequested = errors.New("file was not requested")

	// ErrVersionMismatch is returned when the peer speaks another protocol
	// version.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrSelfConnection is returned when a session's peer turns out to be
	// this node.
	ErrSelfConnection = errors.New("connected to self")
)

// TransferError is a per-file failure. The session continues past it.
type TransferError struct {
	Err  error
	Path string
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
