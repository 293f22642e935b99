package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/beamsync/internal/event"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
)

// Direction records which side opened the channel.
type Direction int

const (
	Outbound Direction = iota + 1
	Inbound
)

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// State is a session's position in the sync protocol.
type State int

const (
	StateConnected State = iota + 1
	StateManifestsExchanged
	StateDiffComputed
	StateTransferring
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateConnected:          "Connected",
	StateManifestsExchanged: "ManifestsExchanged",
	StateDiffComputed:       "DiffComputed",
	StateTransferring:       "Transferring",
	StateComplete:           "Complete",
	StateFailed:             "Failed",
}

func (s State) String() string {
	if s > 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Result is the outcome of one sync session.
type Result struct {
	Err error
	// FileErrors holds the per-file failures of received files.
	FileErrors    []error
	SessionID     string
	Peer          string
	PeerNode      string
	Direction     Direction
	State         State
	Sent          int
	SendFailed    int
	Received      int
	Rejected      int
	BytesSent     int64
	BytesReceived int64
	Compressed    bool
}

// session is the per-channel state. The main goroutine drives the phases;
// during transfer one sub-task writes and one reads, sharing only the
// channel. Writer-owned and reader-owned Result fields are disjoint.
type session struct {
	node   *Node
	conn   *proto.Conn
	log    *slog.Logger
	local  manifest.Manifest
	remote manifest.Manifest

	toSend    []string
	toRequest []string

	state State

	mu  sync.Mutex // guards res.FileErrors
	res Result
}

func (s *session) setState(st State) {
	s.state = st
	s.log.Debug("session state", "state", st)
}

func (s *session) emit(e event.Event) {
	e.Session = s.res.SessionID
	e.Peer = s.res.Peer
	s.node.events.Emit(e)
}

// run drives the session to completion. The caller owns the channel.
func (s *session) run(ctx context.Context) (err error) {
	s.setState(StateConnected)
	defer func() {
		if err != nil {
			s.setState(StateFailed)
			var remote *proto.RemoteError
			if !errors.As(err, &remote) {
				s.conn.SendError(err)
			}
			return
		}
		s.setState(StateComplete)
	}()

	if err := s.exchangeHello(); err != nil {
		return err
	}

	if err := s.exchangeManifests(); err != nil {
		return fmt.Errorf("manifest exchange: %w", err)
	}
	s.setState(StateManifestsExchanged)
	s.emit(event.Event{Type: event.ManifestsExchanged, Size: int64(len(s.remote))})

	s.toSend, s.toRequest = manifest.Diff(s.local, s.remote)
	s.setState(StateDiffComputed)
	s.emit(event.Event{Type: event.DiffComputed, Send: len(s.toSend), Request: len(s.toRequest)})
	s.log.Info("diff computed", "send", len(s.toSend), "request", len(s.toRequest))

	s.setState(StateTransferring)
	return s.concurrently(
		func() error { return s.sendAll(ctx) },
		func() error { return s.receiveAll(ctx) },
	)
}

// concurrently runs the writing and reading halves of a protocol step. A
// failure on either side closes the channel so the other half cannot block
// on it; the first error is returned.
func (s *session) concurrently(write, read func() error) error {
	var g errgroup.Group
	g.Go(func() error { return s.abortOnErr(write()) })
	g.Go(func() error { return s.abortOnErr(read()) })
	return g.Wait()
}

func (s *session) abortOnErr(err error) error {
	if err != nil {
		var remote *proto.RemoteError
		if !errors.As(err, &remote) {
			s.conn.SendError(err)
		}
		s.conn.Close()
	}
	return err
}

func (s *session) exchangeHello() error {
	var caps []string
	if s.node.cfg.Compress {
		caps = append(caps, proto.CapZstd)
	}
	hello := proto.Hello{Version: proto.ProtocolVersion, NodeID: s.node.id, Capabilities: caps}

	var peer proto.Hello
	err := s.concurrently(
		func() error {
			if err := s.conn.Send(proto.MsgHello, &hello); err != nil {
				return err
			}
			return s.conn.Flush()
		},
		func() error { return s.conn.Expect(proto.MsgHello, &peer) },
	)
	if err != nil {
		return fmt.Errorf("hello: %w", err)
	}

	if peer.Version != proto.ProtocolVersion {
		return fmt.Errorf("%w: peer speaks v%d, we speak v%d", ErrVersionMismatch, peer.Version, proto.ProtocolVersion)
	}
	if peer.NodeID == s.node.id {
		return ErrSelfConnection
	}
	s.res.PeerNode = peer.NodeID
	s.log = s.log.With("peer_node", peer.NodeID)

	if s.node.cfg.Compress && peer.Has(proto.CapZstd) {
		if err := s.conn.EnableCompression(); err != nil {
			return err
		}
		s.res.Compressed = true
		s.log.Debug("compression enabled")
	}
	return nil
}

func (s *session) exchangeManifests() error {
	fingerprint := manifest.Fingerprint(s.local)

	send := func() error {
		for _, entries := range proto.ManifestChunks(s.local) {
			if err := s.conn.Send(proto.MsgManifestChunk, &proto.ManifestChunk{Entries: entries}); err != nil {
				return err
			}
		}
		end := proto.ManifestEnd{Count: uint64(len(s.local)), Fingerprint: fingerprint}
		if err := s.conn.Send(proto.MsgManifestEnd, &end); err != nil {
			return err
		}
		return s.conn.Flush()
	}

	recv := func() error {
		m := make(manifest.Manifest)
		for {
			f, err := s.conn.Recv()
			if err != nil {
				return err
			}
			switch f.MsgType {
			case proto.MsgManifestChunk:
				var chunk proto.ManifestChunk
				if err := proto.Decode(f, &chunk); err != nil {
					return err
				}
				if err := proto.AddEntries(m, chunk.Entries); err != nil {
					return err
				}
			case proto.MsgManifestEnd:
				var end proto.ManifestEnd
				if err := proto.Decode(f, &end); err != nil {
					return err
				}
				if end.Count != uint64(len(m)) {
					return fmt.Errorf("%w: manifest announced %d entries, received %d", proto.ErrMalformed, end.Count, len(m))
				}
				if got := manifest.Fingerprint(m); got != end.Fingerprint {
					return fmt.Errorf("%w: manifest fingerprint %s, announced %s", proto.ErrMalformed, got, end.Fingerprint)
				}
				s.remote = m
				return nil
			default:
				return fmt.Errorf("%w: %s during manifest exchange", proto.ErrUnexpectedMessage, proto.MsgName(f.MsgType))
			}
		}
	}

	if err := s.concurrently(send, recv); err != nil {
		return err
	}
	if fingerprint == manifest.Fingerprint(s.remote) {
		s.log.Debug("manifests identical", "fingerprint", fingerprint)
	}
	return nil
}

// sendAll is the writer sub-task: our request, then every file the peer
// lacks, then Done.
func (s *session) sendAll(ctx context.Context) error {
	for _, paths := range proto.PathChunks(s.toRequest) {
		if err := s.conn.Send(proto.MsgRequestChunk, &proto.RequestChunk{Paths: paths}); err != nil {
			return err
		}
	}
	if err := s.conn.Send(proto.MsgRequestEnd, &proto.RequestEnd{Count: uint64(len(s.toRequest))}); err != nil {
		return err
	}
	if err := s.conn.Flush(); err != nil {
		return err
	}

	var done proto.Done
	for _, p := range s.toSend {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.sendFile(ctx, s.local[p])
		done.Sent++
		if err == nil {
			continue
		}
		var te *TransferError
		if !errors.As(err, &te) {
			return err
		}
		done.Failed++
		s.res.SendFailed++
		s.log.Warn("send failed", "path", p, "error", te.Err)
	}

	if err := s.conn.Send(proto.MsgDone, &done); err != nil {
		return err
	}
	return s.conn.Flush()
}

// receiveAll is the reader sub-task: the peer's request, then files until
// the peer's Done.
func (s *session) receiveAll(ctx context.Context) error {
	requested, err := s.readRequest()
	if err != nil {
		return err
	}
	s.checkRequest(requested)

	pending := mapset.NewThreadUnsafeSet(s.toRequest...)
	var headers uint64
	for {
		f, err := s.conn.Recv()
		if err != nil {
			return err
		}
		switch f.MsgType {
		case proto.MsgFileHeader:
			var h proto.FileHeader
			if err := proto.Decode(f, &h); err != nil {
				return err
			}
			headers++
			if err := s.receiveFile(ctx, h, pending); err != nil {
				var te *TransferError
				if !errors.As(err, &te) {
					return err
				}
				s.reject(te)
			}
		case proto.MsgDone:
			var done proto.Done
			if err := proto.Decode(f, &done); err != nil {
				return err
			}
			if done.Sent != headers {
				return fmt.Errorf("%w: peer reports %d files sent, received %d", proto.ErrMalformed, done.Sent, headers)
			}
			if pending.Cardinality() > 0 {
				s.log.Debug("requested files not delivered", "count", pending.Cardinality())
			}
			return nil
		default:
			return fmt.Errorf("%w: %s during transfer", proto.ErrUnexpectedMessage, proto.MsgName(f.MsgType))
		}
	}
}

func (s *session) readRequest() (mapset.Set[string], error) {
	paths := mapset.NewThreadUnsafeSet[string]()
	var n uint64
	for {
		f, err := s.conn.Recv()
		if err != nil {
			return nil, err
		}
		switch f.MsgType {
		case proto.MsgRequestChunk:
			var chunk proto.RequestChunk
			if err := proto.Decode(f, &chunk); err != nil {
				return nil, err
			}
			for _, p := range chunk.Paths {
				paths.Add(p)
			}
			n += uint64(len(chunk.Paths))
		case proto.MsgRequestEnd:
			var end proto.RequestEnd
			if err := proto.Decode(f, &end); err != nil {
				return nil, err
			}
			if end.Count != n {
				return nil, fmt.Errorf("%w: request announced %d paths, received %d", proto.ErrMalformed, end.Count, n)
			}
			return paths, nil
		default:
			return nil, fmt.Errorf("%w: %s while reading request", proto.ErrUnexpectedMessage, proto.MsgName(f.MsgType))
		}
	}
}

// checkRequest compares what the peer asked for with what our diff says it
// lacks. Both sides diff the same two manifests, so a mismatch means the
// peer computes differently; we still send our own list.
func (s *session) checkRequest(requested mapset.Set[string]) {
	expected := mapset.NewThreadUnsafeSet(s.toSend...)
	if requested.Equal(expected) {
		return
	}
	s.log.Warn("peer request differs from diff",
		"unexpected", requested.Difference(expected).Cardinality(),
		"missing", expected.Difference(requested).Cardinality(),
	)
}

func (s *session) reject(te *TransferError) {
	s.mu.Lock()
	s.res.Rejected++
	s.res.FileErrors = append(s.res.FileErrors, te)
	s.mu.Unlock()

	s.node.stats.AddFilesRejected(1)
	s.emit(event.Event{Type: event.FileRejected, Path: te.Path, Error: te.Err})
	if errors.Is(te, manifest.ErrStaleVersion) {
		s.log.Info("discarded stale file", "path", te.Path, "error", te.Err)
		return
	}
	s.log.Warn("rejected file", "path", te.Path, "error", te.Err)
}
