/*
Package memory provides the append/query memory store used for chat audit
records, persisted findings and advisor conclusions.
*/
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists memory entries in SQLite with an FTS5 index.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithEmbedder enables embedding-based reranking.
func WithEmbedder(e embedding.Embedder) Option {
	return func(s *SQLiteStore) { s.embedder = e }
}

// WithLogger sets the logger for non-fatal store problems.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = l }
}

// NewSQLiteStore opens (or creates) the store under basePath. Pass ":memory:"
// for an in-memory database.
func NewSQLiteStore(basePath string, opts ...Option) (*SQLiteStore, error) {
	var dbPath string
	if basePath == ":memory:" {
		dbPath = ":memory:"
	} else {
		dbPath = filepath.Join(basePath, "memory.db")
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, fmt.Errorf("create memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,                      -- JSON object
		tags TEXT NOT NULL DEFAULT '[]',    -- JSON array
		importance REAL NOT NULL DEFAULT 0.5,
		embedding BLOB,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);

	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		id UNINDEXED,
		content
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store appends an entry and returns its id.
func (s *SQLiteStore) Store(ctx context.Context, content string, metadata map[string]any, tags []string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("content is required")
	}

	id := "m-" + uuid.New().String()[:8]
	importance := ScoreImportance(metadata, tags)

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}

	var embeddingBytes []byte
	if vec := s.embed(ctx, content); vec != nil {
		embeddingBytes = float32SliceToBytes(vec)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, metadata, tags, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, content, string(metaJSON), string(tagsJSON), importance, embeddingBytes, s.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (id, content) VALUES (?, ?)`, id, content); err != nil {
		return "", fmt.Errorf("index memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Retrieve returns entries matching q, best first.
func (s *SQLiteStore) Retrieve(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var (
		query string
		args  []any
	)
	fts := sanitizeFTSQuery(q.Text)
	switch {
	case fts != "":
		query = `
		SELECT m.id, m.content, m.metadata, m.tags, m.importance, m.embedding, m.created_at, bm25(memories_fts) AS rank
		FROM memories_fts f
		JOIN memories m ON f.id = m.id
		WHERE memories_fts MATCH ? AND m.importance >= ?`
		args = append(args, fts, q.MinImportance)
	case strings.TrimSpace(q.Text) != "":
		// Only stop words: nothing meaningful to match.
		return nil, nil
	default:
		query = `
		SELECT m.id, m.content, m.metadata, m.tags, m.importance, m.embedding, m.created_at, 0 AS rank
		FROM memories m
		WHERE m.importance >= ?`
		args = append(args, q.MinImportance)
	}
	for _, tag := range q.Tags {
		query += ` AND EXISTS (SELECT 1 FROM json_each(m.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}
	if fts != "" {
		query += ` ORDER BY rank, m.importance DESC LIMIT ?`
		args = append(args, limit*4)
	} else {
		query += ` ORDER BY m.importance DESC, m.created_at DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		entries    []Entry
		embeddings [][]float32
	)
	for rows.Next() {
		var (
			e                  Entry
			metaJSON, tagsJSON sql.NullString
			embeddingBytes     []byte
			createdAt          string
			rank               float64
		)
		if err := rows.Scan(&e.ID, &e.Content, &metaJSON, &tagsJSON, &e.Importance, &embeddingBytes, &createdAt, &rank); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			_ = json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
		}
		if tagsJSON.Valid {
			_ = json.Unmarshal([]byte(tagsJSON.String), &e.Tags)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		e.Score = -rank // bm25 is lower-is-better
		if fts == "" {
			e.Score = e.Importance
		}
		entries = append(entries, e)
		embeddings = append(embeddings, bytesToFloat32Slice(embeddingBytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if fts != "" {
		s.rerank(ctx, q.Text, entries, embeddings)
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// rerank blends cosine similarity with importance when an embedder is set.
func (s *SQLiteStore) rerank(ctx context.Context, text string, entries []Entry, embeddings [][]float32) {
	if s.embedder == nil || len(entries) == 0 {
		return
	}
	queryVec := s.embed(ctx, text)
	if queryVec == nil {
		return
	}
	for i := range entries {
		if len(embeddings[i]) == 0 {
			continue
		}
		entries[i].Score = 0.7*cosineSimilarity(queryVec, embeddings[i]) + 0.3*entries[i].Importance
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
}

func (s *SQLiteStore) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vectors, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		s.logger.Warn("memory embedding failed", "error", err)
		return nil
	}
	return toFloat32(vectors[0])
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}
