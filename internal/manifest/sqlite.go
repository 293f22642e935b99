package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS files (
	path        TEXT PRIMARY KEY,
	version     INTEGER NOT NULL,
	digest      TEXT NOT NULL,
	modified_at INTEGER NOT NULL
);
`

type sqliteRow struct {
	Path       string `db:"path"`
	Digest     string `db:"digest"`
	Version    int64  `db:"version"`
	ModifiedAt int64  `db:"modified_at"`
}

// SQLiteBackend stores the manifest in an SQLite database. Each Save is a
// single transaction, so readers see either the old or the new manifest.
type SQLiteBackend struct {
	db   *sqlx.DB
	path string
}

// OpenSQLiteBackend opens (or creates) the database at path.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open manifest db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create manifest schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) Close() error { return b.db.Close() }

// Load reads every row into a manifest.
func (b *SQLiteBackend) Load() (Manifest, error) {
	var rows []sqliteRow
	if err := b.db.Select(&rows, "SELECT path, version, digest, modified_at FROM files"); err != nil {
		return nil, fmt.Errorf("query manifest: %w", err)
	}

	m := make(Manifest, len(rows))
	for _, r := range rows {
		m[r.Path] = FileRecord{
			Path:       r.Path,
			Digest:     r.Digest,
			Version:    uint64(r.Version), //nolint:gosec // G115: written from uint64 below
			ModifiedAt: r.ModifiedAt,
		}
	}
	return m, nil
}

const sqliteUpsert = `INSERT OR REPLACE INTO files (path, version, digest, modified_at)
	VALUES (:path, :version, :digest, :modified_at)`

func toRow(p string, rec FileRecord) sqliteRow {
	return sqliteRow{
		Path:       p,
		Digest:     rec.Digest,
		Version:    int64(rec.Version), //nolint:gosec // G115: versions stay far below 2^63
		ModifiedAt: rec.ModifiedAt,
	}
}

// Save upserts every record in one transaction. Records are never removed
// from a manifest, so rows absent from m are left in place.
func (b *SQLiteBackend) Save(m Manifest) error {
	tx, err := b.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.PrepareNamed(sqliteUpsert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for p, rec := range m {
		if _, err := stmt.Exec(toRow(p, rec)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SaveRecord upserts a single record.
func (b *SQLiteBackend) SaveRecord(rec FileRecord) error {
	if _, err := b.db.NamedExec(sqliteUpsert, toRow(rec.Path, rec)); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.Path, err)
	}
	return nil
}
