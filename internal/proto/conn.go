package proto

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"
)

// DefaultTimeout bounds every read and write on a Conn.
const DefaultTimeout = 30 * time.Second

const connBufSize = 64 * 1024

// Conn is a framed sync channel over a net.Conn. Every read and write is
// bounded by the configured timeout so a stalled peer cannot hold a session
// forever.
//
// Writes are buffered and serialized by a mutex; call Flush to push them to
// the peer. Recv is not safe for concurrent use: one goroutine reads.
type Conn struct {
	raw     net.Conn
	timeout time.Duration

	rmu    sync.Mutex // held by Recv; Close takes it to release dec
	r      io.Reader  // br, or dec once compression is on
	br     *bufio.Reader
	dec    *zstd.Decoder
	closed bool

	wmu sync.Mutex
	bw  *bufio.Writer
	enc *zstd.Encoder

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps raw. A timeout <= 0 selects DefaultTimeout.
func NewConn(raw net.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	br := bufio.NewReaderSize(raw, connBufSize)
	return &Conn{
		raw:     raw,
		timeout: timeout,
		br:      br,
		r:       br,
		bw:      bufio.NewWriterSize(raw, connBufSize),
	}
}

// Send encodes m and queues it as a frame of type t.
func (c *Conn) Send(t byte, m Message) error {
	payload, err := m.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf("encode %s: %w", MsgName(t), err)
	}
	return c.SendRaw(t, payload)
}

// SendRaw queues a frame of type t carrying payload verbatim.
func (c *Conn) SendRaw(t byte, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.raw.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if err := WriteFrame(c.bw, Frame{StreamID: SyncStream, MsgType: t, Payload: payload}); err != nil {
		return fmt.Errorf("send %s: %w", MsgName(t), err)
	}
	return nil
}

// Flush pushes queued frames to the peer.
func (c *Conn) Flush() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.flushLocked()
}

func (c *Conn) flushLocked() error {
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if err := c.bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if c.enc != nil {
		if err := c.enc.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
	}
	return nil
}

// Recv reads the next frame. An Error frame from the peer is returned as a
// *RemoteError. Frames on a stream other than SyncStream are rejected.
func (c *Conn) Recv() (Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.closed {
		return Frame{}, net.ErrClosed
	}

	if err := c.raw.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return Frame{}, err
	}
	f, err := ReadFrame(c.r)
	if err != nil {
		return Frame{}, err
	}
	if f.StreamID != SyncStream {
		return Frame{}, fmt.Errorf("%w: frame on reserved stream %d", ErrUnexpectedMessage, f.StreamID)
	}
	if f.MsgType == MsgError {
		var em ErrorMsg
		if err := Decode(f, &em); err != nil {
			return Frame{}, &RemoteError{Message: "undecodable error message"}
		}
		return Frame{}, &RemoteError{Message: em.Message}
	}
	return f, nil
}

// Expect reads the next frame, requires it to be of type t, and decodes its
// payload into m.
func (c *Conn) Expect(t byte, m Message) error {
	f, err := c.Recv()
	if err != nil {
		return err
	}
	if f.MsgType != t {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, MsgName(f.MsgType), MsgName(t))
	}
	return Decode(f, m)
}

// Decode unmarshals f's payload into m and checks its required fields. The
// payload is walked once first so that no length prefix can claim more
// elements than the frame holds.
func Decode(f Frame, m Message) error {
	if _, err := msgp.Skip(f.Payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, MsgName(f.MsgType), err)
	}
	if _, err := m.UnmarshalMsg(f.Payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformed, MsgName(f.MsgType), err)
	}
	if v, ok := m.(validator); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
	}
	return nil
}

// SendError makes a best-effort attempt to tell the peer why the session is
// being torn down. It gives up immediately if another goroutine is writing,
// since that write may be what is stuck.
func (c *Conn) SendError(cause error) {
	payload, err := (&ErrorMsg{Message: cause.Error()}).MarshalMsg(nil)
	if err != nil {
		return
	}
	if !c.wmu.TryLock() {
		return
	}
	defer c.wmu.Unlock()

	if err := c.raw.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return
	}
	if err := WriteFrame(c.bw, Frame{StreamID: SyncStream, MsgType: MsgError, Payload: payload}); err != nil {
		return
	}
	c.flushLocked() //nolint:errcheck // best effort; the session is already failing
}

// EnableCompression switches both directions of the channel to zstd. Both
// peers must switch at the same protocol point, after the Hello exchange,
// and no read or write may be in flight.
func (c *Conn) EnableCompression() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.enc != nil {
		return nil
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	enc, err := newEncoder(c.raw)
	if err != nil {
		return err
	}
	dec, err := newDecoder(c.br)
	if err != nil {
		enc.Close()
		return err
	}
	c.enc = enc
	c.bw.Reset(enc)

	c.rmu.Lock()
	c.dec = dec
	c.r = dec
	c.rmu.Unlock()
	return nil
}

// Compressed reports whether compression is active.
func (c *Conn) Compressed() bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.enc != nil
}

// Close closes the underlying connection; pending reads and writes fail.
// Queued frames that were never flushed are dropped. The zstd encoder and
// decoder are released once in-flight calls have returned. Close is
// idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()

		c.wmu.Lock()
		if c.enc != nil {
			c.enc.Close() //nolint:errcheck // the conn is gone; nothing to flush to
			c.enc = nil
		}
		c.bw.Reset(c.raw)
		c.wmu.Unlock()

		c.rmu.Lock()
		c.closed = true
		if c.dec != nil {
			c.dec.Close()
			c.dec = nil
		}
		c.rmu.Unlock()
	})
	return c.closeErr
}
