package manifest

import (
	"fmt"
	"path/filepath"
)

// Backend kinds accepted by Options.Backend.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Backend persists a manifest. Save must be atomic: a concurrent Load never
// observes a partially written manifest.
type Backend interface {
	Load() (Manifest, error)
	Save(m Manifest) error
	Path() string
	Close() error
}

// RecordSaver is implemented by backends that can persist one record without
// rewriting the whole manifest.
type RecordSaver interface {
	SaveRecord(rec FileRecord) error
}

// OpenBackend opens the backend of the given kind inside metaDir.
//
//nolint:ireturn // factory returns interface by design
func OpenBackend(kind, metaDir string) (Backend, error) {
	switch kind {
	case "", BackendJSON:
		return NewJSONBackend(filepath.Join(metaDir, "manifest.json")), nil
	case BackendSQLite:
		return OpenSQLiteBackend(filepath.Join(metaDir, "manifest.db"))
	default:
		return nil, fmt.Errorf("unknown manifest backend %q", kind)
	}
}
