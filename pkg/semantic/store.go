package semantic

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mcpvgw/vgateway/pkg/gwerrors"
)

// Record is one persisted embedding (§3 "Embedding record").
type Record struct {
	QualifiedName   string
	Vector          []float32
	DescriptionHash string
	SchemaHash      string
	ModelID         string
}

// Metadata describes the state of a persisted index for one profile
// (§3 "Embedding record", §4.6 "Persistence").
type Metadata struct {
	Fingerprint  string
	ModelID      string
	TotalTools   int
	IndexedTools int
	CompletedAt  *time.Time
}

// HashContent returns the stable hash used to detect whether a
// persisted vector can be reused across a fingerprint change (§4.6).
func HashContent(description string, schema []byte) string {
	h := sha256.New()
	_, _ = h.Write([]byte(description))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(schema)
	return hex.EncodeToString(h.Sum(nil))
}

// Store persists embedding records and index metadata in a SQLite
// database (§4.6 "Persistence"). It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) a SQLite database at dsn and
// ensures its schema exists. Pass "file::memory:?cache=shared" in tests
// for a throwaway in-process database.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "opening semantic index store")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	fingerprint TEXT NOT NULL,
	model_id TEXT NOT NULL,
	total_tools INTEGER NOT NULL,
	indexed_tools INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE TABLE IF NOT EXISTS embeddings (
	qualified_name TEXT PRIMARY KEY,
	vector BLOB NOT NULL,
	description_hash TEXT NOT NULL,
	schema_hash TEXT NOT NULL,
	model_id TEXT NOT NULL
);`
	_, err := s.db.Exec(schema)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, err, "migrating semantic index schema")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// LoadMetadata returns the persisted metadata, or nil if none has been
// written yet (cold start).
func (s *Store) LoadMetadata(ctx context.Context) (*Metadata, error) {
	row := s.db.QueryRowContext(ctx, `SELECT fingerprint, model_id, total_tools, indexed_tools, completed_at FROM metadata WHERE id = 1`)
	var m Metadata
	var completed sql.NullInt64
	if err := row.Scan(&m.Fingerprint, &m.ModelID, &m.TotalTools, &m.IndexedTools, &completed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "loading semantic index metadata")
	}
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		m.CompletedAt = &t
	}
	return &m, nil
}

// SaveMetadata upserts the single metadata row.
func (s *Store) SaveMetadata(ctx context.Context, m Metadata) error {
	var completed any
	if m.CompletedAt != nil {
		completed = m.CompletedAt.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metadata (id, fingerprint, model_id, total_tools, indexed_tools, completed_at)
VALUES (1, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	fingerprint = excluded.fingerprint,
	model_id = excluded.model_id,
	total_tools = excluded.total_tools,
	indexed_tools = excluded.indexed_tools,
	completed_at = excluded.completed_at
`, m.Fingerprint, m.ModelID, m.TotalTools, m.IndexedTools, completed)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, err, "saving semantic index metadata")
	}
	return nil
}

// LoadAll returns every persisted record, keyed by qualified name.
func (s *Store) LoadAll(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT qualified_name, vector, description_hash, schema_hash, model_id FROM embeddings`)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "loading semantic index records")
	}
	defer rows.Close()

	out := make(map[string]Record)
	for rows.Next() {
		var r Record
		var blob []byte
		if err := rows.Scan(&r.QualifiedName, &blob, &r.DescriptionHash, &r.SchemaHash, &r.ModelID); err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindInternal, err, "scanning semantic index record")
		}
		r.Vector = decodeVector(blob)
		out[r.QualifiedName] = r
	}
	return out, rows.Err()
}

// Upsert writes or replaces a single record (append-only in spirit:
// existing qualified names are simply overwritten rather than
// duplicated, matching §4.6's "reuse unchanged triples" rule).
func (s *Store) Upsert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO embeddings (qualified_name, vector, description_hash, schema_hash, model_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(qualified_name) DO UPDATE SET
	vector = excluded.vector,
	description_hash = excluded.description_hash,
	schema_hash = excluded.schema_hash,
	model_id = excluded.model_id
`, r.QualifiedName, encodeVector(r.Vector), r.DescriptionHash, r.SchemaHash, r.ModelID)
	if err != nil {
		return gwerrors.Wrap(gwerrors.KindInternal, err, "upserting semantic index record %q", r.QualifiedName)
	}
	return nil
}

// DeleteMissing removes any persisted record whose qualified name is
// not in keep, used after a catalog rebuild to drop stale vectors.
func (s *Store) DeleteMissing(ctx context.Context, keep map[string]bool) error {
	existing, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	for name := range existing {
		if keep[name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE qualified_name = ?`, name); err != nil {
			return gwerrors.Wrap(gwerrors.KindInternal, err, "deleting stale semantic index record %q", name)
		}
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
