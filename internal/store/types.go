// Package store persists buffers, chunks, embeddings, and a small key-value
// namespace for session variables. It is the single-writer persistence
// layer for the retrieval engine (C1); SQLiteChunkStore serves reads and
// writes over one connection.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentTypeHint classifies a buffer's content for downstream chunking strategy choice.
type ContentTypeHint string

const (
	ContentTypeText     ContentTypeHint = "text"
	ContentTypeMarkdown ContentTypeHint = "markdown"
	ContentTypeCode     ContentTypeHint = "code"
)

// State keys for the key-value namespace (dimension/model bookkeeping across migrations).
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"
)

// CurrentSchemaVersion is the current database schema version. A migration
// that changes embedding dimensions must clear all embeddings (§4.1).
const CurrentSchemaVersion = 1

// Buffer is a named logical container for a single document (§3).
type Buffer struct {
	ID          int64
	Name        string
	Content     string
	SourcePath  string
	ByteSize    int64
	LineCount   int
	ContentHash string
	ContentType ContentTypeHint
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a byte-range slice of a buffer's content with position (§3).
type Chunk struct {
	ID          int64
	BufferID    int64
	Index       int // 0-based, strictly increasing within a buffer
	Start       int // inclusive byte offset into buffer content
	End         int // exclusive byte offset into buffer content
	Text        string
	Strategy    string // chunking strategy name, e.g. "fixed", "paragraph"
	TokenCount  int    // approximate, 0 if not computed
	Overlap     bool
	ContentHash string
}

// ChunkMetadata is a chunk's positional and provenance metadata without
// its text, for callers that need shape/position information for many
// chunks in one round trip rather than the full content of each.
type ChunkMetadata struct {
	ID          int64
	BufferID    int64
	Index       int
	Start       int
	End         int
	Strategy    string
	TokenCount  int
	Overlap     bool
	ContentHash string
}

// Embedding is a fixed-dimensional float vector associated with a chunk,
// tagged with the model that produced it (§3).
type Embedding struct {
	ChunkID   int64
	Model     string
	Vector    []float32
	CreatedAt time.Time
}

// Stats summarizes the store's contents (§4.1).
type Stats struct {
	Buffers        int
	Chunks         int
	Bytes          int64
	EmbeddedChunks int
}

// ChunkStore persists buffers, chunks, embeddings, and session state. All
// operations fail with one of the §7 Kinds: NotFound, Conflict,
// InvalidArgument, IoError, SchemaError.
type ChunkStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	IsInitialized(ctx context.Context) (bool, error)

	// Buffer
	PutBuffer(ctx context.Context, b *Buffer) (int64, error)
	GetBuffer(ctx context.Context, idOrName string) (*Buffer, error)
	ListBuffers(ctx context.Context) ([]*Buffer, error)
	DeleteBuffer(ctx context.Context, id int64) error
	UpdateBuffer(ctx context.Context, id int64, newContent string, newChunks []*Chunk) error

	// Chunk
	PutChunks(ctx context.Context, bufferID int64, chunks []*Chunk) error
	GetChunk(ctx context.Context, id int64) (*Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []int64) ([]*Chunk, error)
	GetChunkMetadataBatch(ctx context.Context, ids []int64) ([]*ChunkMetadata, error)
	ListChunks(ctx context.Context, bufferID int64) ([]*Chunk, error)
	DeleteChunks(ctx context.Context, bufferID int64) error

	// Embedding
	PutEmbedding(ctx context.Context, chunkID int64, model string, vec []float32) error
	GetEmbedding(ctx context.Context, chunkID int64, model string) (*Embedding, error)
	MissingEmbeddings(ctx context.Context, bufferID int64, model string) ([]int64, error)

	// State (key-value namespace for session variables)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Stats
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// ErrDimensionMismatch indicates an embedding vector's dimension does not
// match the active model's dimension for the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
