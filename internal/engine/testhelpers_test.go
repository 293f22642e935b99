package engine_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsync/internal/engine"
	"github.com/bamsammich/beamsync/internal/event"
	"github.com/bamsammich/beamsync/internal/manifest"
	"github.com/bamsammich/beamsync/internal/proto"
)

const testTimeout = 5 * time.Second

// createTestTree populates root with a standard test tree:
//
//	root.txt          (17 bytes)
//	big.bin           (320KB, more than one data chunk)
//	sub/mid.txt       (19 bytes)
//	sub/deep/leaf.txt (17 bytes)
//	link.txt          → root.txt (symlink, never synced)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	writeFile(t, root, "root.txt", "root file content")
	writeFile(t, root, "big.bin", string(bytes.Repeat([]byte("ABCDEFGHIJKLMNOP"), 20000)))
	writeFile(t, root, "sub/mid.txt", "middle file content")
	writeFile(t, root, "sub/deep/leaf.txt", "leaf file content")
	require.NoError(t, os.Symlink("root.txt", filepath.Join(root, "link.txt")))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func drainEvents(t *testing.T) chan<- event.Event {
	t.Helper()
	ch := make(chan event.Event, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch { //nolint:revive // drain
		}
	}()
	t.Cleanup(func() {
		close(ch)
		<-done
	})
	return ch
}

type testNode struct {
	*engine.Node
	store *manifest.Store
	root  string
}

// newTestNode opens a store on a fresh or given folder, reconciles it and
// wraps it in a node. Options adjust the config before the node is built.
func newTestNode(t *testing.T, root string, opts ...func(*engine.Config)) *testNode {
	t.Helper()
	if root == "" {
		root = t.TempDir()
	}

	store, err := manifest.Open(root, manifest.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Reconcile(context.Background())
	require.NoError(t, err)

	cfg := engine.Config{
		Store:      store,
		Timeout:    testTimeout,
		ListenAddr: "127.0.0.1:0",
		Events:     drainEvents(t),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, err := engine.New(cfg)
	require.NoError(t, err)
	return &testNode{Node: n, store: store, root: store.Root()}
}

// syncPipe runs one session between a (outbound) and b (inbound) over an
// in-memory channel.
func syncPipe(t *testing.T, a, b *testNode) (engine.Result, engine.Result) {
	t.Helper()
	ca, cb := net.Pipe()

	var ra, rb engine.Result
	var wg sync.WaitGroup
	wg.Go(func() { ra = a.RunSession(context.Background(), ca, "b", engine.Outbound) })
	wg.Go(func() { rb = b.RunSession(context.Background(), cb, "a", engine.Inbound) })
	wg.Wait()
	return ra, rb
}

// requireConverged checks that both folders hold the same synced files with
// the same records.
func requireConverged(t *testing.T, a, b *testNode) {
	t.Helper()
	ma, mb := a.store.Snapshot(), b.store.Snapshot()
	require.Equal(t, ma.Paths(), mb.Paths())
	for _, p := range ma.Paths() {
		assert.Equal(t, ma[p].Version, mb[p].Version, p)
		assert.Equal(t, ma[p].Digest, mb[p].Digest, p)
		assert.Equal(t, readFile(t, a.root, p), readFile(t, b.root, p), p)
	}
}

// requireNoTempFiles fails if an in-flight temp file is left under root.
func requireNoTempFiles(t *testing.T, root string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		assert.NotContains(t, d.Name(), manifest.TempSuffix, path)
		return nil
	})
	require.NoError(t, err)
}

type identity struct {
	cert tls.Certificate
	fp   string
}

func newIdentity(t *testing.T, name string) identity {
	t.Helper()
	cert, err := proto.GenerateSelfSignedCert(name)
	require.NoError(t, err)
	fp, err := proto.CertFingerprint(cert)
	require.NoError(t, err)
	return identity{cert: cert, fp: fp}
}

// fakePeer speaks the wire protocol by hand over one end of a pipe.
type fakePeer struct {
	conn   *proto.Conn
	frames chan proto.Frame
	errs   chan error
}

// newFakePeer starts reading everything the other side sends.
func newFakePeer(t *testing.T, raw net.Conn) *fakePeer {
	t.Helper()
	fp := &fakePeer{
		conn:   proto.NewConn(raw, testTimeout),
		frames: make(chan proto.Frame, 1024),
		errs:   make(chan error, 1),
	}
	t.Cleanup(func() { fp.conn.Close() })
	go func() {
		for {
			f, err := fp.conn.Recv()
			if err != nil {
				fp.errs <- err
				close(fp.frames)
				return
			}
			fp.frames <- f
		}
	}()
	return fp
}

func (fp *fakePeer) send(t *testing.T, typ byte, m proto.Message) {
	t.Helper()
	require.NoError(t, fp.conn.Send(typ, m))
}

func (fp *fakePeer) sendRaw(t *testing.T, typ byte, payload []byte) {
	t.Helper()
	require.NoError(t, fp.conn.SendRaw(typ, payload))
}

func (fp *fakePeer) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, fp.conn.Flush())
}

// hello sends a hello and an empty-or-given manifest.
func (fp *fakePeer) hello(t *testing.T, nodeID string, entries ...proto.ManifestEntry) {
	t.Helper()
	fp.send(t, proto.MsgHello, &proto.Hello{Version: proto.ProtocolVersion, NodeID: nodeID})
	m := make(manifest.Manifest)
	require.NoError(t, proto.AddEntries(m, entries))
	if len(entries) > 0 {
		fp.send(t, proto.MsgManifestChunk, &proto.ManifestChunk{Entries: entries})
	}
	fp.send(t, proto.MsgManifestEnd, &proto.ManifestEnd{Count: uint64(len(entries)), Fingerprint: manifest.Fingerprint(m)})
	fp.flush(t)
}

// received collects frame types until the channel closes.
func (fp *fakePeer) received() []byte {
	var types []byte
	for f := range fp.frames {
		types = append(types, f.MsgType)
	}
	return types
}
