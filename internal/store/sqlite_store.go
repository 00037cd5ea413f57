package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// SQLiteChunkStore implements ChunkStore on top of SQLite in WAL mode.
// Reads and writes share a single open connection (db.SetMaxOpenConns(1)),
// and writes take the exclusive side of mu, so reads do not run
// concurrently with writes or with each other at the database level.
type SQLiteChunkStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ ChunkStore = (*SQLiteChunkStore)(nil)

// NewSQLiteChunkStore opens (or creates) a chunk store at path. An empty path
// opens an in-memory store, used by tests.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, engerrors.StoreError(fmt.Sprintf("cannot create directory %s", dir), err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, engerrors.StoreError("failed to open chunk store", err)
	}

	// One connection for all reads and writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, engerrors.StoreError("failed to set pragma", err)
		}
	}

	return &SQLiteChunkStore{db: db, path: path}, nil
}

// Init creates the schema if missing. Safe to call repeatedly.
func (s *SQLiteChunkStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS buffers (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL UNIQUE,
		content       TEXT NOT NULL,
		source_path   TEXT NOT NULL DEFAULT '',
		byte_size     INTEGER NOT NULL,
		line_count    INTEGER NOT NULL,
		content_hash  TEXT NOT NULL,
		content_type  TEXT NOT NULL DEFAULT 'text',
		chunk_count   INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		buffer_id     INTEGER NOT NULL REFERENCES buffers(id) ON DELETE CASCADE,
		idx           INTEGER NOT NULL,
		start_byte    INTEGER NOT NULL,
		end_byte      INTEGER NOT NULL,
		text          TEXT NOT NULL,
		strategy      TEXT NOT NULL,
		token_count   INTEGER NOT NULL DEFAULT 0,
		overlap       INTEGER NOT NULL DEFAULT 0,
		content_hash  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_buffer ON chunks(buffer_id, idx);

	CREATE TABLE IF NOT EXISTS embeddings (
		chunk_id   INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		model      TEXT NOT NULL,
		vector     BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (chunk_id, model)
	);

	CREATE TABLE IF NOT EXISTS kv_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return engerrors.StoreError("failed to initialize chunk store schema", err)
	}
	return nil
}

// Reset drops and recreates the schema, clearing all persisted state.
func (s *SQLiteChunkStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	drop := `
	DROP TABLE IF EXISTS embeddings;
	DROP TABLE IF EXISTS chunks;
	DROP TABLE IF EXISTS buffers;
	DROP TABLE IF EXISTS kv_state;
	DROP TABLE IF EXISTS schema_version;
	`
	_, err := s.db.ExecContext(ctx, drop)
	s.mu.Unlock()
	if err != nil {
		return engerrors.StoreError("failed to reset chunk store", err)
	}
	return s.Init(ctx)
}

// IsInitialized reports whether the schema has been created.
func (s *SQLiteChunkStore) IsInitialized(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='buffers'`).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, engerrors.StoreError("failed to check initialization", err)
	}
	return true, nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// PutBuffer inserts a new buffer. A name collision returns Conflict.
func (s *SQLiteChunkStore) PutBuffer(ctx context.Context, b *Buffer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if b.ContentHash == "" {
		b.ContentHash = hashContent(b.Content)
	}
	if b.ByteSize == 0 {
		b.ByteSize = int64(len(b.Content))
	}
	if b.ContentType == "" {
		b.ContentType = ContentTypeText
	}

	var existing int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM buffers WHERE name = ?`, b.Name).Scan(&existing)
	if err == nil {
		return 0, engerrors.ConflictError(fmt.Sprintf("buffer %q already exists", b.Name))
	}
	if err != sql.ErrNoRows {
		return 0, engerrors.StoreError("failed to check buffer name", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO buffers (name, content, source_path, byte_size, line_count, content_hash, content_type, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		b.Name, b.Content, b.SourcePath, b.ByteSize, b.LineCount, b.ContentHash, string(b.ContentType), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, engerrors.StoreError("failed to insert buffer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, engerrors.StoreError("failed to read inserted buffer id", err)
	}
	return id, nil
}

func scanBuffer(row *sql.Row) (*Buffer, error) {
	var b Buffer
	var contentType string
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.Name, &b.Content, &b.SourcePath, &b.ByteSize, &b.LineCount,
		&b.ContentHash, &contentType, &b.ChunkCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.ContentType = ContentTypeHint(contentType)
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}

// GetBuffer looks up a buffer by numeric id (if idOrName parses as int64) or by name.
func (s *SQLiteChunkStore) GetBuffer(ctx context.Context, idOrName string) (*Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const cols = `id, name, content, source_path, byte_size, line_count, content_hash, content_type, chunk_count, created_at, updated_at`

	var row *sql.Row
	if id, ok := parseInt64(idOrName); ok {
		row = s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM buffers WHERE id = ?`, id)
	} else {
		row = s.db.QueryRowContext(ctx, `SELECT `+cols+` FROM buffers WHERE name = ?`, idOrName)
	}

	b, err := scanBuffer(row)
	if err != nil {
		return nil, engerrors.StoreError("failed to query buffer", err)
	}
	if b == nil {
		return nil, engerrors.NotFoundf(engerrors.ErrCodeBufferNotFound, "buffer %q not found", idOrName)
	}
	return b, nil
}

func parseInt64(s string) (int64, bool) {
	var n int64
	var neg bool
	if s == "" {
		return 0, false
	}
	start := 0
	if s[0] == '-' {
		neg = true
		start = 1
	}
	if start == len(s) {
		return 0, false
	}
	for _, c := range s[start:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// ListBuffers returns all buffers ordered by id.
func (s *SQLiteChunkStore) ListBuffers(ctx context.Context) ([]*Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, source_path, byte_size, line_count, content_hash, content_type, chunk_count, created_at, updated_at
		FROM buffers ORDER BY id`)
	if err != nil {
		return nil, engerrors.StoreError("failed to list buffers", err)
	}
	defer rows.Close()

	var out []*Buffer
	for rows.Next() {
		var b Buffer
		var contentType, createdAt, updatedAt string
		if err := rows.Scan(&b.ID, &b.Name, &b.Content, &b.SourcePath, &b.ByteSize, &b.LineCount,
			&b.ContentHash, &contentType, &b.ChunkCount, &createdAt, &updatedAt); err != nil {
			return nil, engerrors.StoreError("failed to scan buffer row", err)
		}
		b.ContentType = ContentTypeHint(contentType)
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// DeleteBuffer removes a buffer; chunks and embeddings cascade via foreign keys.
func (s *SQLiteChunkStore) DeleteBuffer(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM buffers WHERE id = ?`, id)
	if err != nil {
		return engerrors.StoreError("failed to delete buffer", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return engerrors.NotFoundf(engerrors.ErrCodeBufferNotFound, "buffer %d not found", id)
	}
	return nil
}

// UpdateBuffer atomically replaces a buffer's content and chunk set.
func (s *SQLiteChunkStore) UpdateBuffer(ctx context.Context, id int64, newContent string, newChunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engerrors.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE buffers SET content = ?, byte_size = ?, content_hash = ?, chunk_count = ?, updated_at = ?
		WHERE id = ?`,
		newContent, int64(len(newContent)), hashContent(newContent), len(newChunks), now.Format(time.RFC3339Nano), id)
	if err != nil {
		return engerrors.StoreError("failed to update buffer content", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engerrors.NotFoundf(engerrors.ErrCodeBufferNotFound, "buffer %d not found", id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE buffer_id = ?`, id); err != nil {
		return engerrors.StoreError("failed to clear old chunks", err)
	}

	if err := insertChunksTx(ctx, tx, id, newChunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return engerrors.StoreError("failed to commit buffer update", err)
	}
	return nil
}

func insertChunksTx(ctx context.Context, tx *sql.Tx, bufferID int64, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (buffer_id, idx, start_byte, end_byte, text, strategy, token_count, overlap, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return engerrors.StoreError("failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		hash := c.ContentHash
		if hash == "" {
			hash = hashContent(c.Text)
		}
		overlap := 0
		if c.Overlap {
			overlap = 1
		}
		res, err := stmt.ExecContext(ctx, bufferID, c.Index, c.Start, c.End, c.Text, c.Strategy, c.TokenCount, overlap, hash)
		if err != nil {
			return engerrors.StoreError("failed to insert chunk", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return engerrors.StoreError("failed to read inserted chunk id", err)
		}
		c.ID = id
		c.BufferID = bufferID
		c.ContentHash = hash
	}
	return nil
}

// PutChunks inserts chunks for a buffer, assigning generated IDs back onto each Chunk.
func (s *SQLiteChunkStore) PutChunks(ctx context.Context, bufferID int64, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return engerrors.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertChunksTx(ctx, tx, bufferID, chunks); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE buffers SET chunk_count = (SELECT COUNT(*) FROM chunks WHERE buffer_id = ?), updated_at = ?
		WHERE id = ?`, bufferID, time.Now().Format(time.RFC3339Nano), bufferID); err != nil {
		return engerrors.StoreError("failed to refresh buffer chunk count", err)
	}

	return tx.Commit()
}

func scanChunk(rows interface {
	Scan(dest ...any) error
}) (*Chunk, error) {
	var c Chunk
	var overlap int
	if err := rows.Scan(&c.ID, &c.BufferID, &c.Index, &c.Start, &c.End, &c.Text, &c.Strategy, &c.TokenCount, &overlap, &c.ContentHash); err != nil {
		return nil, err
	}
	c.Overlap = overlap != 0
	return &c, nil
}

const chunkCols = `id, buffer_id, idx, start_byte, end_byte, text, strategy, token_count, overlap, content_hash`

// GetChunk fetches one chunk by id.
func (s *SQLiteChunkStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkCols+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, engerrors.NotFoundf(engerrors.ErrCodeChunkNotFound, "chunk %d not found", id)
	}
	if err != nil {
		return nil, engerrors.StoreError("failed to query chunk", err)
	}
	return c, nil
}

// GetChunksByIDs returns chunks in the order requested; absent ids yield a nil entry.
func (s *SQLiteChunkStore) GetChunksByIDs(ctx context.Context, ids []int64) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkCols+` FROM chunks WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, engerrors.StoreError("failed to batch-fetch chunks", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, engerrors.StoreError("failed to scan chunk row", err)
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, engerrors.StoreError("failed to iterate chunk rows", err)
	}

	out := make([]*Chunk, len(ids))
	for i, id := range ids {
		out[i] = byID[id] // nil if absent, preserving requested order
	}
	return out, nil
}

const chunkMetaCols = `id, buffer_id, idx, start_byte, end_byte, strategy, token_count, overlap, content_hash`

func scanChunkMetadata(rows interface {
	Scan(dest ...any) error
}) (*ChunkMetadata, error) {
	var m ChunkMetadata
	var overlap int
	if err := rows.Scan(&m.ID, &m.BufferID, &m.Index, &m.Start, &m.End, &m.Strategy, &m.TokenCount, &overlap, &m.ContentHash); err != nil {
		return nil, err
	}
	m.Overlap = overlap != 0
	return &m, nil
}

// GetChunkMetadataBatch returns chunk metadata (no text) for the given ids
// in one round trip, in the order requested; absent ids yield a nil entry.
// Distinct from GetChunksByIDs, which also loads each chunk's text.
func (s *SQLiteChunkStore) GetChunkMetadataBatch(ctx context.Context, ids []int64) ([]*ChunkMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkMetaCols+` FROM chunks WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, engerrors.StoreError("failed to batch-fetch chunk metadata", err)
	}
	defer rows.Close()

	byID := make(map[int64]*ChunkMetadata, len(ids))
	for rows.Next() {
		m, err := scanChunkMetadata(rows)
		if err != nil {
			return nil, engerrors.StoreError("failed to scan chunk metadata row", err)
		}
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, engerrors.StoreError("failed to iterate chunk metadata rows", err)
	}

	out := make([]*ChunkMetadata, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// ListChunks returns all chunks of a buffer, ordered by index.
func (s *SQLiteChunkStore) ListChunks(ctx context.Context, bufferID int64) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkCols+` FROM chunks WHERE buffer_id = ? ORDER BY idx`, bufferID)
	if err != nil {
		return nil, engerrors.StoreError("failed to list chunks", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, engerrors.StoreError("failed to scan chunk row", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChunks removes all chunks (and their embeddings, via cascade) for a buffer.
func (s *SQLiteChunkStore) DeleteChunks(ctx context.Context, bufferID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE buffer_id = ?`, bufferID); err != nil {
		return engerrors.StoreError("failed to delete chunks", err)
	}
	return nil
}

func encodeVector(vec []float32) ([]byte, error) {
	var buf strings.Builder
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(vec); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func decodeVector(data []byte) ([]float32, error) {
	var vec []float32
	dec := gob.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// PutEmbedding stores an embedding for (chunk, model), replacing any existing one.
func (s *SQLiteChunkStore) PutEmbedding(ctx context.Context, chunkID int64, model string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeVector(vec)
	if err != nil {
		return engerrors.InternalError("failed to encode embedding vector", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, model, vector, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id, model) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at`,
		chunkID, model, data, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return engerrors.StoreError("failed to store embedding", err)
	}
	return nil
}

// GetEmbedding fetches an embedding for (chunk, model).
func (s *SQLiteChunkStore) GetEmbedding(ctx context.Context, chunkID int64, model string) (*Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data []byte
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, created_at FROM embeddings WHERE chunk_id = ? AND model = ?`, chunkID, model).
		Scan(&data, &createdAt)
	if err == sql.ErrNoRows {
		return nil, engerrors.NotFoundf(engerrors.ErrCodeChunkNotFound, "embedding for chunk %d model %q not found", chunkID, model)
	}
	if err != nil {
		return nil, engerrors.StoreError("failed to query embedding", err)
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, engerrors.InternalError("failed to decode embedding vector", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, createdAt)
	return &Embedding{ChunkID: chunkID, Model: model, Vector: vec, CreatedAt: ts}, nil
}

// MissingEmbeddings returns chunk ids in a buffer that lack an embedding for model.
func (s *SQLiteChunkStore) MissingEmbeddings(ctx context.Context, bufferID int64, model string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chunks c
		WHERE c.buffer_id = ?
		AND NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.chunk_id = c.id AND e.model = ?)
		ORDER BY c.idx`, bufferID, model)
	if err != nil {
		return nil, engerrors.StoreError("failed to query missing embeddings", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, engerrors.StoreError("failed to scan chunk id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetState reads a session-variable value. Returns "" with no error if absent.
func (s *SQLiteChunkStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", engerrors.StoreError("failed to read state", err)
	}
	return value, nil
}

// SetState writes a session-variable value.
func (s *SQLiteChunkStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return engerrors.StoreError("failed to write state", err)
	}
	return nil
}

// Stats reports buffer/chunk/byte/embedded-chunk counts.
func (s *SQLiteChunkStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buffers`).Scan(&st.Buffers); err != nil {
		return nil, engerrors.StoreError("failed to count buffers", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&st.Chunks); err != nil {
		return nil, engerrors.StoreError("failed to count chunks", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(byte_size), 0) FROM buffers`).Scan(&st.Bytes); err != nil {
		return nil, engerrors.StoreError("failed to sum bytes", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT chunk_id) FROM embeddings`).Scan(&st.EmbeddedChunks); err != nil {
		return nil, engerrors.StoreError("failed to count embedded chunks", err)
	}
	return &st, nil
}

// Close closes the underlying database connection.
func (s *SQLiteChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
