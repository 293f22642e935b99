package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// diskRecord is the on-disk shape of one manifest entry; the path is the
// enclosing map key.
type diskRecord struct {
	Digest     string `json:"digest"`
	Version    uint64 `json:"version"`
	ModifiedAt int64  `json:"modified_at"`
}

// JSONBackend stores the manifest as a single JSON object keyed by path.
type JSONBackend struct {
	path string
}

// NewJSONBackend returns a backend persisting to path.
func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{path: path}
}

func (b *JSONBackend) Path() string { return b.path }

func (*JSONBackend) Close() error { return nil }

// Load reads the manifest file. A missing file yields an empty manifest.
func (b *JSONBackend) Load() (Manifest, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(Manifest), nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var disk map[string]diskRecord
	if err := json.Unmarshal(data, &disk); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", b.path, err)
	}

	m := make(Manifest, len(disk))
	for p, r := range disk {
		m[p] = FileRecord{Path: p, Digest: r.Digest, Version: r.Version, ModifiedAt: r.ModifiedAt}
	}
	return m, nil
}

// Save writes the manifest to a temp file in the same directory, syncs it,
// and renames it over the previous manifest.
func (b *JSONBackend) Save(m Manifest) error {
	disk := make(map[string]diskRecord, len(m))
	for p, r := range m {
		disk[p] = diskRecord{Digest: r.Digest, Version: r.Version, ModifiedAt: r.ModifiedAt}
	}

	data, err := json.MarshalIndent(disk, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	return writeFileAtomic(b.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}
