package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

var (
	// ErrLocked is returned by Open when another process owns the folder.
	ErrLocked = errors.New("folder is locked by another beamsync process")

	// ErrStaleVersion is returned when a record would lower a path's version,
	// or change its digest without raising the version.
	ErrStaleVersion = errors.New("stale version")

	// ErrSave wraps failures to persist the manifest. The in-memory manifest
	// stays authoritative when it is returned.
	ErrSave = errors.New("save manifest")
)

// Options configures a Store.
type Options struct {
	// Backend is BackendJSON (default) or BackendSQLite.
	Backend string
	// ScanWorkers bounds scan parallelism (default min(NumCPU, 8)).
	ScanWorkers int
}

// Store owns the manifest of one folder. All methods are safe for concurrent
// use: reads run in parallel, mutations are serialized, and no lock is held
// across network I/O.
type Store struct {
	backend Backend
	lock    *flock.Flock
	root    string
	workers int

	mu      sync.RWMutex
	records Manifest

	saveMu sync.Mutex // orders snapshots with the writes that persist them
	dirty  bool       // a single-record save failed; next persist writes everything
}

// ReconcileResult describes the outcome of a Reconcile.
type ReconcileResult struct {
	// Changed lists paths whose version was bumped, sorted.
	Changed []string
	// Errors holds per-file scan failures; those paths keep their old records.
	Errors []error
	// Files is the number of regular files seen on disk.
	Files int
}

// Open locks root for this process, opens the manifest backend under
// root/.beamsync and loads the persisted manifest.
func Open(root string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("folder %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("folder %q is not a directory", root)
	}

	metaDir := filepath.Join(abs, MetaDir)
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", metaDir, err)
	}

	lock := flock.New(filepath.Join(metaDir, "lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock folder: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	backend, err := OpenBackend(opts.Backend, metaDir)
	if err != nil {
		lock.Unlock() //nolint:errcheck // best-effort on failed open
		return nil, err
	}

	s := &Store{
		root:    abs,
		backend: backend,
		lock:    lock,
		workers: opts.ScanWorkers,
		records: make(Manifest),
	}
	if err := s.Load(); err != nil {
		s.Close() //nolint:errcheck // load error takes precedence
		return nil, err
	}
	return s, nil
}

// Root returns the absolute folder path.
func (s *Store) Root() string { return s.root }

// Load replaces the in-memory manifest with the persisted one.
func (s *Store) Load() error {
	m, err := s.backend.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records = m
	s.mu.Unlock()
	return nil
}

// Save persists the current in-memory manifest. On failure the in-memory
// manifest stays authoritative and a later Save may succeed.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := s.backend.Save(s.Snapshot()); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	s.dirty = false
	return nil
}

// persist writes path's current record. Backends that support it get a
// single-record upsert; the others rewrite the manifest.
func (s *Store) persist(path string) error {
	rs, ok := s.backend.(RecordSaver)
	if !ok {
		return s.Save()
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.dirty {
		return s.saveLocked()
	}
	// Read under saveMu so a slower persist never writes an older record
	// over a newer one.
	rec, _ := s.Get(path)
	if err := rs.SaveRecord(rec); err != nil {
		s.dirty = true
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// Snapshot returns a copy of the in-memory manifest.
func (s *Store) Snapshot() Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Clone()
}

// Get returns the record for path.
func (s *Store) Get(path string) (FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Set installs rec in memory. A record whose version is lower than the
// stored one, or equal with a different digest, is rejected with
// ErrStaleVersion. Callers persist with Save.
func (s *Store) Set(rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(rec)
}

func (s *Store) setLocked(rec FileRecord) error {
	if err := checkNewer(s.records[rec.Path], rec); err != nil {
		return err
	}
	s.records[rec.Path] = rec
	return nil
}

func checkNewer(cur, next FileRecord) error {
	if next.Version < cur.Version {
		return fmt.Errorf("%w: %s v%d is older than stored v%d", ErrStaleVersion, next.Path, next.Version, cur.Version)
	}
	if next.Version == cur.Version && cur.Version != 0 && next.Digest != cur.Digest {
		return fmt.Errorf("%w: %s v%d digest differs from stored record", ErrStaleVersion, next.Path, next.Version)
	}
	return nil
}

// Commit installs a received file. Under the write lock it checks that rec
// does not lower the stored version, runs install (typically the rename of a
// verified temp file into place; may be nil), and records rec. It then
// persists the record. When install fails nothing is recorded. A persist
// error is returned but the in-memory record stays installed.
func (s *Store) Commit(rec FileRecord, install func() error) error {
	s.mu.Lock()
	if err := checkNewer(s.records[rec.Path], rec); err != nil {
		s.mu.Unlock()
		return err
	}
	if install != nil {
		if err := install(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("install %s: %w", rec.Path, err)
		}
	}
	s.records[rec.Path] = rec
	s.mu.Unlock()

	return s.persist(rec.Path)
}

// Scan walks the folder and returns the current on-disk state. It does not
// touch the manifest.
func (s *Store) Scan(ctx context.Context) (Manifest, []error) {
	ignore, err := LoadIgnore(s.root)
	if err != nil {
		slog.Warn("ignore file unreadable, using defaults", "error", err)
		ignore, _ = LoadIgnore("") //nolint:errcheck // empty root has no ignore file
	}
	return NewScanner(ScannerConfig{Root: s.root, Workers: s.workers, Ignore: ignore}).Scan(ctx)
}

// Reconcile scans the folder and bumps the version of every path whose
// digest is new or changed. Paths missing from disk keep their records.
// Paths committed by a session while the scan ran are left alone. The
// manifest is saved at the end. An error is returned only when the folder
// itself cannot be read or the manifest cannot be saved.
func (s *Store) Reconcile(ctx context.Context) (ReconcileResult, error) {
	before := s.Snapshot()
	scanned, errs := s.Scan(ctx)

	for _, err := range errs {
		var se *ScanError
		if errors.As(err, &se) && se.Path == "." {
			return ReconcileResult{Errors: errs}, fmt.Errorf("read folder: %w", se.Err)
		}
		if !errors.As(err, &se) {
			return ReconcileResult{Errors: errs}, err
		}
	}

	res := ReconcileResult{Errors: errs, Files: len(scanned)}

	s.mu.Lock()
	for _, p := range scanned.Paths() {
		disk := scanned[p]
		cur, known := s.records[p]
		if known && cur.Digest == disk.Digest {
			continue
		}
		if cur != before[p] {
			continue
		}
		disk.Version = cur.Version + 1
		s.records[p] = disk
		res.Changed = append(res.Changed, p)
	}
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return res, err
	}
	return res, nil
}

// BackendPath returns where the manifest is persisted.
func (s *Store) BackendPath() string { return s.backend.Path() }

// Close releases the backend and the folder lock.
func (s *Store) Close() error {
	err := s.backend.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// NodeID returns this folder's persistent node identifier, creating it on
// first use.
func (s *Store) NodeID() (string, error) {
	path := filepath.Join(s.root, MetaDir, "node_id")
	data, err := os.ReadFile(path)
	if err == nil {
		if id, parseErr := uuid.Parse(strings.TrimSpace(string(data))); parseErr == nil {
			return id.String(), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read node id: %w", err)
	}

	id := uuid.NewString()
	if err := writeFileAtomic(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write node id: %w", err)
	}
	return id, nil
}
