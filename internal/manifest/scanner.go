package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/bamsammich/beamsync/internal/digest"
)

// ScanError reports a file that could not be read during a scan. The scan
// continues past it.
type ScanError struct {
	Err  error
	Path string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ScannerConfig controls scanner behavior.
type ScannerConfig struct {
	Ignore  *Ignore
	Root    string
	Workers int
}

// Scanner walks a folder in parallel and digests every regular file.
type Scanner struct {
	cfg ScannerConfig

	mu      sync.Mutex
	records Manifest
	errs    []error
}

// NewScanner creates a scanner with the given config.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Scanner{cfg: cfg}
}

// Scan walks the tree and returns a snapshot of every regular file with its
// digest and modification time. Versions in the snapshot are zero. Symlinks
// and other non-regular files are skipped. Per-file failures are collected
// and returned; they never abort the scan. A failure to read the root itself
// is returned as the first error.
func (s *Scanner) Scan(ctx context.Context) (Manifest, []error) {
	s.records = make(Manifest)
	s.errs = nil

	workQueue := make(chan string, s.cfg.Workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range s.cfg.Workers {
		workerWg.Go(func() {
			for dirPath := range workQueue {
				s.scanDir(ctx, dirPath, workQueue, &outstanding)
				outstanding.Done()
			}
		})
	}

	outstanding.Add(1)
	workQueue <- s.cfg.Root

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()

	if err := ctx.Err(); err != nil {
		s.errs = append(s.errs, err)
	}
	return s.records, s.errs
}

func (s *Scanner) scanDir(ctx context.Context, dirPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		s.addErr(s.relOrSelf(dirPath), err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		s.processEntry(ctx, filepath.Join(dirPath, entry.Name()), workQueue, outstanding)
	}
}

func (s *Scanner) processEntry(ctx context.Context, full string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	rel := s.relOrSelf(full)

	info, err := os.Lstat(full)
	if err != nil {
		s.addErr(rel, err)
		return
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		if s.cfg.Ignore.Match(rel + "/") {
			return
		}
		outstanding.Add(1)
		// Enqueue without blocking the worker: with every worker busy
		// enqueuing, a bounded queue would otherwise deadlock.
		go func() {
			select {
			case workQueue <- full:
			case <-ctx.Done():
				outstanding.Done()
			}
		}()

	case mode.IsRegular():
		if s.cfg.Ignore.Match(rel) {
			return
		}
		d, err := digest.File(full)
		if err != nil {
			s.addErr(rel, err)
			return
		}
		s.mu.Lock()
		s.records[rel] = FileRecord{
			Path:       rel,
			Digest:     d,
			ModifiedAt: info.ModTime().UnixNano(),
		}
		s.mu.Unlock()

	default:
		// symlinks, devices, sockets
	}
}

func (s *Scanner) relOrSelf(full string) string {
	rel, err := filepath.Rel(s.cfg.Root, full)
	if err != nil {
		return filepath.ToSlash(full)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) addErr(rel string, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, &ScanError{Path: rel, Err: err})
	s.mu.Unlock()
}
