package proto

import (
	"fmt"

	"github.com/bamsammich/beamsync/internal/digest"
	"github.com/bamsammich/beamsync/internal/manifest"
)

// ChunkEntries bounds the number of entries (or paths) per ManifestChunk and
// RequestChunk frame. With paths capped by typical filesystem limits this
// stays well under MaxFrameSize.
const ChunkEntries = 4096

// FromRecord converts a manifest record to its wire entry.
func FromRecord(rec manifest.FileRecord) ManifestEntry {
	return ManifestEntry{Path: rec.Path, Version: rec.Version, Digest: rec.Digest}
}

// ToRecord converts a wire entry to a manifest record. ModifiedAt is left
// zero; it never crosses the wire.
func ToRecord(e ManifestEntry) manifest.FileRecord {
	return manifest.FileRecord{Path: e.Path, Version: e.Version, Digest: e.Digest}
}

// HeaderFor builds the transfer header announcing rec with size bytes.
func HeaderFor(rec manifest.FileRecord, size uint64) FileHeader {
	return FileHeader{Path: rec.Path, Size: size, Version: rec.Version, Digest: rec.Digest}
}

// Record returns the manifest record a verified transfer installs.
func (h FileHeader) Record(modifiedAt int64) manifest.FileRecord {
	return manifest.FileRecord{Path: h.Path, Version: h.Version, Digest: h.Digest, ModifiedAt: modifiedAt}
}

// ManifestChunks splits m into sorted batches of at most ChunkEntries wire
// entries. An empty manifest yields no chunks.
func ManifestChunks(m manifest.Manifest) [][]ManifestEntry {
	paths := m.Paths()
	var chunks [][]ManifestEntry
	for start := 0; start < len(paths); start += ChunkEntries {
		end := min(start+ChunkEntries, len(paths))
		chunk := make([]ManifestEntry, 0, end-start)
		for _, p := range paths[start:end] {
			rec := m[p]
			rec.Path = p
			chunk = append(chunk, FromRecord(rec))
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// PathChunks splits paths into batches of at most ChunkEntries.
func PathChunks(paths []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(paths); start += ChunkEntries {
		chunks = append(chunks, paths[start:min(start+ChunkEntries, len(paths))])
	}
	return chunks
}

// AddEntries validates wire entries and adds them to m. Unsafe paths,
// duplicates, zero versions and invalid digests make the whole manifest
// malformed.
func AddEntries(m manifest.Manifest, entries []ManifestEntry) error {
	for _, e := range entries {
		clean, err := manifest.CleanPath(e.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if e.Version == 0 {
			return fmt.Errorf("%w: %q has version 0", ErrMalformed, clean)
		}
		if !digest.Valid(e.Digest) {
			return fmt.Errorf("%w: %q has invalid digest %q", ErrMalformed, clean, e.Digest)
		}
		if _, dup := m[clean]; dup {
			return fmt.Errorf("%w: duplicate manifest entry %q", ErrMalformed, clean)
		}
		e.Path = clean
		m[clean] = ToRecord(e)
	}
	return nil
}
