package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bamsammich/beamsync/internal/event"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
	"github.com/bamsammich/beamsync/internal/stats"
)

// DefaultDebounce is how long the watcher waits for the folder to settle
// before reconciling.
const DefaultDebounce = 500 * time.Millisecond

// Config describes a sync node.
type Config struct {
	Store *manifest.Store
	// Trust decides which peer certificates are accepted.
	Trust *proto.Trust
	// Stats is shared by all sessions; one is created if nil.
	Stats *stats.Collector
	// Events receives progress events; full channels drop events.
	Events      chan<- event.Event
	ListenAddr  string
	Peers       []Peer
	Certificate tls.Certificate
	// Timeout bounds dials, handshakes and every channel read or write.
	Timeout time.Duration
	// Interval repeats reconcile + sync rounds; 0 runs a single round.
	Interval time.Duration
	// Debounce delays reconcile after filesystem events when watching.
	Debounce time.Duration
	// BWLimit caps outbound file bytes per second across all sessions.
	BWLimit  int64
	Compress bool
	Watch    bool
}

// Node serves inbound sessions and runs outbound ones for one folder.
type Node struct {
	store    *manifest.Store
	limiter  *rate.Limiter
	stats    *stats.Collector
	events   event.Sink
	listener net.Listener
	conns    map[net.Conn]struct{}
	trigger  chan struct{}
	id       string
	cfg      Config
	mu       sync.Mutex
}

// New creates a node. Call Listen and Serve to accept peers, SyncPeers for
// one outbound round, or Run for both.
func New(cfg Config) (*Node, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = proto.DefaultTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}

	id, err := cfg.Store.NodeID()
	if err != nil {
		return nil, err
	}

	return &Node{
		cfg:     cfg,
		store:   cfg.Store,
		id:      id,
		limiter: NewBWLimiter(cfg.BWLimit),
		stats:   cfg.Stats,
		events:  event.Sink(cfg.Events),
		conns:   make(map[net.Conn]struct{}),
		trigger: make(chan struct{}, 1),
	}, nil
}

// ID returns the node's persistent identifier.
func (n *Node) ID() string { return n.id }

// Stats returns the node's collector.
func (n *Node) Stats() *stats.Collector { return n.stats }

// Listen binds the TLS listener.
func (n *Node) Listen() error {
	if n.listener != nil {
		return nil
	}
	ln, err := tls.Listen("tcp", n.cfg.ListenAddr, proto.ServerTLSConfig(n.cfg.Certificate, n.cfg.Trust))
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.cfg.ListenAddr, err)
	}
	n.listener = ln
	return nil
}

// Addr returns the listener's address (useful when listening on :0).
func (n *Node) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Serve accepts peers until ctx is cancelled, running one session per
// connection. Blocks until every session has finished.
func (n *Node) Serve(ctx context.Context) error {
	if err := n.Listen(); err != nil {
		return err
	}
	slog.Info("listening", "addr", n.listener.Addr(), "folder", n.store.Root(), "node", n.id)

	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		n.listener.Close()

		n.mu.Lock()
		defer n.mu.Unlock()
		for conn := range n.conns {
			conn.Close()
		}
	}()

	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Error("accept error", "error", err)
			continue
		}

		n.mu.Lock()
		n.conns[conn] = struct{}{}
		n.mu.Unlock()

		wg.Go(func() {
			defer func() {
				n.mu.Lock()
				delete(n.conns, conn)
				n.mu.Unlock()
			}()
			n.handleConn(ctx, conn)
		})
	}

	wg.Wait()
	return nil
}

func (n *Node) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	tlsConn, ok := conn.(*tls.Conn)
	if ok {
		hctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		err := tlsConn.HandshakeContext(hctx)
		cancel()
		if err != nil {
			slog.Warn("handshake failed", "peer", remote, "error", err)
			return
		}
		fp, _ := proto.PeerFingerprint(tlsConn.ConnectionState()) //nolint:errcheck // handshake required a cert
		slog.Debug("peer authenticated", "peer", remote, "fingerprint", fp)
	}

	n.RunSession(ctx, conn, remote, Inbound)
}

// Dial connects to p and runs one session.
func (n *Node) Dial(ctx context.Context, p Peer) Result {
	addr := p.String()
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: n.cfg.Timeout},
		Config:    proto.ClientTLSConfig(n.cfg.Certificate, n.cfg.Trust, addr),
	}

	dctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	conn, err := dialer.DialContext(dctx, "tcp", addr)
	cancel()
	if err != nil {
		slog.Warn("dial failed", "peer", addr, "error", err)
		n.stats.AddSessionsFailed(1)
		return Result{Peer: addr, Direction: Outbound, State: StateFailed, Err: fmt.Errorf("dial %s: %w", addr, err)}
	}
	defer conn.Close()

	return n.RunSession(ctx, conn, addr, Outbound)
}

// SyncPeers dials every configured peer concurrently and runs one session
// with each. Failures are per peer.
func (n *Node) SyncPeers(ctx context.Context) []Result {
	results := make([]Result, len(n.cfg.Peers))
	var wg sync.WaitGroup
	for i, p := range n.cfg.Peers {
		wg.Go(func() {
			results[i] = n.Dial(ctx, p)
		})
	}
	wg.Wait()
	return results
}

// RunSession runs the sync protocol over an established channel. The
// channel is closed when the session ends or ctx is cancelled.
func (n *Node) RunSession(ctx context.Context, raw net.Conn, peer string, dir Direction) Result {
	conn := proto.NewConn(raw, n.cfg.Timeout)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	id := uuid.NewString()
	s := &session{
		node:  n,
		conn:  conn,
		local: n.store.Snapshot(),
		log:   slog.With("session", id[:8], "peer", peer, "direction", dir),
		res:   Result{SessionID: id, Peer: peer, Direction: dir},
	}

	n.stats.AddSessionsStarted(1)
	s.emit(event.Event{Type: event.SessionStarted})
	s.log.Debug("session started", "files", len(s.local))
	start := time.Now()

	err := s.run(ctx)
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}

	res := s.res
	res.State = s.state
	res.Err = err

	if err != nil {
		n.stats.AddSessionsFailed(1)
		s.emit(event.Event{Type: event.SessionFailed, Error: err})
		s.log.Warn("session failed", "state", res.State, "error", err)
		return res
	}

	n.stats.AddSessionsCompleted(1)
	s.emit(event.Event{Type: event.SessionCompleted})
	s.log.Info("session complete",
		"sent", res.Sent,
		"received", res.Received,
		"rejected", res.Rejected,
		"bytes_sent", stats.FormatBytes(res.BytesSent),
		"bytes_received", stats.FormatBytes(res.BytesReceived),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res
}

// Run serves inbound peers and runs outbound rounds until ctx is cancelled:
// one round immediately, then one per Interval and one after each batch of
// local changes when watching. Only a bind failure is fatal.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Serve(ctx) })
	g.Go(func() error {
		n.syncLoop(ctx)
		return nil
	})
	if n.cfg.Watch {
		g.Go(func() error { return n.Watch(ctx) })
	}
	return g.Wait()
}

func (n *Node) syncLoop(ctx context.Context) {
	var tick <-chan time.Time
	if n.cfg.Interval > 0 {
		t := time.NewTicker(n.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		if len(n.cfg.Peers) > 0 {
			n.SyncPeers(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-n.trigger:
		case <-tick:
			if _, err := n.reconcile(ctx); err != nil {
				slog.Error("reconcile failed", "error", err)
			}
		}
	}
}

// requestRound asks the sync loop for another round without blocking.
func (n *Node) requestRound() {
	select {
	case n.trigger <- struct{}{}:
	default:
	}
}

func (n *Node) reconcile(ctx context.Context) (manifest.ReconcileResult, error) {
	res, err := n.store.Reconcile(ctx)
	if err != nil {
		return res, err
	}
	for _, e := range res.Errors {
		slog.Warn("scan error", "error", e)
	}
	n.events.Emit(event.Event{Type: event.ReconcileComplete, Size: int64(res.Files), Send: len(res.Changed)})
	if len(res.Changed) > 0 {
		slog.Info("local changes", "changed", len(res.Changed), "files", res.Files)
	}
	return res, nil
}

// Close stops a listener that Serve never ran on.
func (n *Node) Close() error {
	if n.listener == nil {
		return nil
	}
	err := n.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
