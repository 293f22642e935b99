// Package manifest tracks the versioned state of a synchronized folder.
//
// A manifest maps every synchronized file's slash-separated relative path to
// a FileRecord. Versions are unsigned ordinals that increase each time the
// file's content digest changes; a path that is not in the manifest is at
// version 0.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
)

// FileRecord is the tracked state of one file.
type FileRecord struct {
	Path       string
	Digest     string
	Version    uint64
	ModifiedAt int64 // unix nanoseconds, informational only
}

// Manifest maps relative path to record.
type Manifest map[string]FileRecord

// ErrUnsafePath is returned for paths that would escape the folder root.
var ErrUnsafePath = errors.New("unsafe path")

// Version returns the version recorded for p, or 0 if p is absent.
func (m Manifest) Version(p string) uint64 {
	if rec, ok := m[p]; ok {
		return rec.Version
	}
	return 0
}

// Clone returns a deep copy of m.
func (m Manifest) Clone() Manifest {
	out := make(Manifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Paths returns the manifest's paths in sorted order.
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Diff compares a local manifest against a peer's. toSend holds the paths
// where local is strictly newer than the peer (or the peer lacks them);
// toRequest holds the paths where the peer is strictly newer. Both lists
// are sorted. Only the integer version is compared.
func Diff(local, peer Manifest) (toSend, toRequest []string) {
	toSend = newerIn(local, peer)
	toRequest = newerIn(peer, local)
	return toSend, toRequest
}

func newerIn(a, b Manifest) []string {
	var out []string
	for p, rec := range a {
		if rec.Version > b.Version(p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// CleanPath validates a wire path and returns it in canonical form. Paths must
// be relative, slash-separated, and must not traverse above the root.
func CleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) || strings.Contains(p, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	if path.IsAbs(p) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	if clean == MetaDir || strings.HasPrefix(clean, MetaDir+"/") {
		return "", fmt.Errorf("%w: %q is reserved", ErrUnsafePath, p)
	}
	return clean, nil
}
