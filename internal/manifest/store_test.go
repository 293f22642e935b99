package manifest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/beamsync/internal/digest"
	"github.com/bamsammich/beamsync/internal/manifest"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func openStore(t *testing.T, root, backend string) *manifest.Store {
	t.Helper()
	s, err := manifest.Open(root, manifest.Options{Backend: backend})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var backends = []string{manifest.BackendJSON, manifest.BackendSQLite}

func TestLoadMissingIsEmpty(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			t.Parallel()
			s := openStore(t, t.TempDir(), b)
			assert.Empty(t, s.Snapshot())
		})
	}
}

func TestReconcileAssignsVersions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "docs/readme.txt", "read me")

	s := openStore(t, root, manifest.BackendJSON)
	res, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "docs/readme.txt"}, res.Changed)
	assert.Equal(t, 2, res.Files)
	assert.Empty(t, res.Errors)

	rec, ok := s.Get("docs/readme.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Version)
	assert.Equal(t, digest.Bytes([]byte("read me")), rec.Digest)
	assert.NotZero(t, rec.ModifiedAt)
}

func TestReconcileMonotonicVersions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := openStore(t, root, manifest.BackendJSON)
	ctx := context.Background()

	// Past ten versions so a textual comparison would misorder them.
	var last uint64
	for i := range 12 {
		writeFile(t, root, "f.txt", string(rune('a'+i)))
		_, err := s.Reconcile(ctx)
		require.NoError(t, err)

		rec, ok := s.Get("f.txt")
		require.True(t, ok)
		assert.Greater(t, rec.Version, last)
		last = rec.Version
	}
	assert.Equal(t, uint64(12), last)

	// No content change: version stays put.
	_, err := s.Reconcile(ctx)
	require.NoError(t, err)
	rec, _ := s.Get("f.txt")
	assert.Equal(t, uint64(12), rec.Version)
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			writeFile(t, root, "x", "1")
			writeFile(t, root, "y/z", "2")
			s := openStore(t, root, b)

			_, err := s.Reconcile(context.Background())
			require.NoError(t, err)
			first := s.Snapshot()

			res, err := s.Reconcile(context.Background())
			require.NoError(t, err)
			assert.Empty(t, res.Changed)
			assert.Equal(t, first, s.Snapshot())
		})
	}
}

func TestReconcileKeepsDeletedPaths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "gone.txt", "bye")
	s := openStore(t, root, manifest.BackendJSON)
	_, err := s.Reconcile(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))
	_, err = s.Reconcile(context.Background())
	require.NoError(t, err)

	rec, ok := s.Get("gone.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.Version)
}

func TestPersistAcrossReopen(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			writeFile(t, root, "a", "one")
			writeFile(t, root, "b/c", "two")

			s, err := manifest.Open(root, manifest.Options{Backend: b})
			require.NoError(t, err)
			_, err = s.Reconcile(context.Background())
			require.NoError(t, err)
			want := s.Snapshot()
			require.NoError(t, s.Close())

			reopened := openStore(t, root, b)
			assert.Equal(t, want, reopened.Snapshot())
		})
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	openStore(t, root, manifest.BackendJSON)

	_, err := manifest.Open(root, manifest.Options{})
	require.ErrorIs(t, err, manifest.ErrLocked)
}

func TestOpenRejectsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := manifest.Open(path, manifest.Options{})
	require.Error(t, err)
}

func TestSetRejectsLowerVersion(t *testing.T) {
	t.Parallel()

	s := openStore(t, t.TempDir(), manifest.BackendJSON)

	require.NoError(t, s.Set(manifest.FileRecord{Path: "p", Version: 5, Digest: "d5"}))
	err := s.Set(manifest.FileRecord{Path: "p", Version: 4, Digest: "d4"})
	require.ErrorIs(t, err, manifest.ErrStaleVersion)

	err = s.Set(manifest.FileRecord{Path: "p", Version: 5, Digest: "other"})
	require.ErrorIs(t, err, manifest.ErrStaleVersion)

	require.NoError(t, s.Set(manifest.FileRecord{Path: "p", Version: 5, Digest: "d5"}))
	require.NoError(t, s.Set(manifest.FileRecord{Path: "p", Version: 9, Digest: "d9"}))

	rec, _ := s.Get("p")
	assert.Equal(t, uint64(9), rec.Version)
}

func TestCommitRunsInstallAndPersists(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := openStore(t, root, manifest.BackendJSON)

	installed := false
	rec := manifest.FileRecord{Path: "docs/readme.txt", Version: 3, Digest: "d1"}
	require.NoError(t, s.Commit(rec, func() error {
		installed = true
		return nil
	}))
	assert.True(t, installed)

	loaded, err := manifest.NewJSONBackend(s.BackendPath()).Load()
	require.NoError(t, err)
	assert.Equal(t, rec, loaded["docs/readme.txt"])
}

func TestCommitStaleSkipsInstall(t *testing.T) {
	t.Parallel()

	s := openStore(t, t.TempDir(), manifest.BackendJSON)
	require.NoError(t, s.Commit(manifest.FileRecord{Path: "p", Version: 7, Digest: "new"}, nil))

	called := false
	err := s.Commit(manifest.FileRecord{Path: "p", Version: 6, Digest: "old"}, func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, manifest.ErrStaleVersion)
	assert.False(t, called)

	rec, _ := s.Get("p")
	assert.Equal(t, "new", rec.Digest)
}

func TestCommitRacingVersionsKeepsNewest(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			s := openStore(t, root, b)

			prepare := func(rel string, version uint64) func() error {
				content := fmt.Sprintf("%s v%d", rel, version)
				tmp := filepath.Join(root, fmt.Sprintf(".%s.v%d%s", rel, version, manifest.TempSuffix))
				require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
				rec := manifest.FileRecord{Path: rel, Version: version, Digest: digest.Bytes([]byte(content))}
				return func() error {
					return s.Commit(rec, func() error {
						return os.Rename(tmp, filepath.Join(root, rel))
					})
				}
			}

			const paths = 20
			for i := range paths {
				rel := fmt.Sprintf("f%02d.txt", i)
				start := make(chan struct{})
				var wg sync.WaitGroup
				errs := make([]error, 2)
				for j, version := range []uint64{3, 2} {
					commit := prepare(rel, version)
					wg.Go(func() {
						<-start
						errs[j] = commit()
					})
				}
				close(start)
				wg.Wait()

				require.NoError(t, errs[0], "the newer version always commits")
				if errs[1] != nil {
					require.ErrorIs(t, errs[1], manifest.ErrStaleVersion)
				}
			}

			persisted, err := manifest.OpenBackend(b, filepath.Join(root, manifest.MetaDir))
			require.NoError(t, err)
			defer persisted.Close()
			loaded, err := persisted.Load()
			require.NoError(t, err)

			for i := range paths {
				rel := fmt.Sprintf("f%02d.txt", i)
				data, err := os.ReadFile(filepath.Join(root, rel))
				require.NoError(t, err)
				assert.Equal(t, rel+" v3", string(data))

				rec, ok := s.Get(rel)
				require.True(t, ok)
				assert.Equal(t, uint64(3), rec.Version)
				assert.Equal(t, uint64(3), loaded[rel].Version, rel)
			}
		})
	}
}

func TestSQLiteSaveRecord(t *testing.T) {
	t.Parallel()

	b, err := manifest.OpenSQLiteBackend(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Save(manifest.Manifest{
		"a": {Path: "a", Version: 1, Digest: "da"},
		"b": {Path: "b", Version: 1, Digest: "db"},
	}))
	require.NoError(t, b.SaveRecord(manifest.FileRecord{Path: "c", Version: 4, Digest: "dc", ModifiedAt: 7}))
	require.NoError(t, b.SaveRecord(manifest.FileRecord{Path: "a", Version: 2, Digest: "da2"}))

	m, err := b.Load()
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, manifest.FileRecord{Path: "a", Version: 2, Digest: "da2"}, m["a"])
	assert.Equal(t, uint64(1), m["b"].Version)
	assert.Equal(t, manifest.FileRecord{Path: "c", Version: 4, Digest: "dc", ModifiedAt: 7}, m["c"])
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			s, err := manifest.Open(root, manifest.Options{Backend: b})
			require.NoError(t, err)
			for i := range 5 {
				p := fmt.Sprintf("r%d", i)
				require.NoError(t, s.Commit(manifest.FileRecord{Path: p, Version: uint64(i + 1), Digest: "d"}, nil))
			}
			require.NoError(t, s.Close())

			reopened := openStore(t, root, b)
			snap := reopened.Snapshot()
			require.Len(t, snap, 5)
			assert.Equal(t, uint64(5), snap["r4"].Version)
		})
	}
}

func TestCommitInstallFailureRecordsNothing(t *testing.T) {
	t.Parallel()

	s := openStore(t, t.TempDir(), manifest.BackendJSON)
	err := s.Commit(manifest.FileRecord{Path: "p", Version: 1, Digest: "d"}, func() error {
		return os.ErrPermission
	})
	require.ErrorIs(t, err, os.ErrPermission)

	_, ok := s.Get("p")
	assert.False(t, ok)
}

func TestScanSkipsMetaSymlinksAndIgnored(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "keep.txt", "k")
	writeFile(t, root, "build/out.o", "o")
	writeFile(t, root, "notes.log", "l")
	writeFile(t, root, ".syncignore", "build/\n# comment\n*.log\n")
	writeFile(t, root, "a"+manifest.TempSuffix+"-123", "partial")
	require.NoError(t, os.Symlink("keep.txt", filepath.Join(root, "link.txt")))

	s := openStore(t, root, manifest.BackendJSON)
	_, err := s.Reconcile(context.Background())
	require.NoError(t, err)

	snap, errs := s.Scan(context.Background())
	assert.Empty(t, errs)
	assert.Equal(t, []string{".syncignore", "keep.txt"}, snap.Paths())
	for _, rec := range snap {
		assert.Zero(t, rec.Version)
	}
}

func TestScanReportsUnreadableFile(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read any file")
	}
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "ok.txt", "fine")
	writeFile(t, root, "secret.txt", "hidden")
	require.NoError(t, os.Chmod(filepath.Join(root, "secret.txt"), 0o000))

	s := openStore(t, root, manifest.BackendJSON)
	res, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.txt"}, res.Changed)
	require.Len(t, res.Errors, 1)

	var se *manifest.ScanError
	require.ErrorAs(t, res.Errors[0], &se)
	assert.Equal(t, "secret.txt", se.Path)
}

func TestNodeIDStable(t *testing.T) {
	t.Parallel()

	s := openStore(t, t.TempDir(), manifest.BackendJSON)
	id1, err := s.NodeID()
	require.NoError(t, err)
	id2, err := s.NodeID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 36)
}
