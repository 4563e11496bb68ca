// Package store persists the message archive and the embedded knowledge
// corpus in a single SQLite database. Pure-Go driver, WAL mode, one
// connection.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"lurkbot/internal/domain"
)

// SQLiteStore implements domain.MessageStore and domain.KnowledgeStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		author_id   TEXT NOT NULL,
		author_name TEXT,
		content     TEXT,
		reply_to_id TEXT,
		mentions_me INTEGER DEFAULT 0,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id         TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		content    TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		stored_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source_url);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveMessage archives one message. Re-saving an existing id is a no-op.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg domain.InboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, author_id, author_name, content, reply_to_id, mentions_me, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.AuthorID, msg.AuthorName, msg.Content, msg.ReplyToID, boolInt(msg.MentionsMe), msg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

// RecentMessages returns the newest limit messages in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]domain.InboundMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author_id, author_name, content, reply_to_id, mentions_me, created_at
		 FROM messages ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []domain.InboundMessage
	for rows.Next() {
		var m domain.InboundMessage
		var mentions int
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.AuthorName, &m.Content, &m.ReplyToID, &mentions, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.MentionsMe = mentions != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (domain.ArchiveStats, error) {
	var stats domain.ArchiveStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT author_id) FROM messages`,
	).Scan(&stats.TotalMessages, &stats.UniqueAuthors)
	if err != nil {
		return domain.ArchiveStats{}, fmt.Errorf("query archive stats: %w", err)
	}
	return stats, nil
}

// PruneOlderThan deletes archived messages created before cutoff. Knowledge
// chunks are never touched.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	return res.RowsAffected()
}

// AddChunks stores chunks, skipping ids already present. Returns the number
// newly stored.
func (s *SQLiteStore) AddChunks(ctx context.Context, chunks []domain.KnowledgeChunk) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin chunk insert: %w", err)
	}
	defer tx.Rollback()

	stored := 0
	for _, c := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO knowledge_chunks (id, source_url, content, embedding, stored_at)
			 VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.SourceURL, c.Content, encodeVector(c.Embedding), c.StoredAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit chunk insert: %w", err)
	}
	return stored, nil
}

// QuerySimilar ranks all stored chunks by cosine similarity to the query
// vector and returns the top k, best first. Scores are normalized to [0,1]
// as (1+cos)/2. The corpus is small enough (thousands of chunks) that a
// full scan in Go is fine.
func (s *SQLiteStore) QuerySimilar(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	if len(vector) == 0 || k < 1 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_url, content, embedding, stored_at FROM knowledge_chunks`,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var scored []domain.ScoredChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourceURL, &c.Content, &blob, &c.StoredAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.Embedding = decodeVector(blob)
		if len(c.Embedding) != len(vector) {
			continue
		}
		cos := cosine(vector, c.Embedding)
		scored = append(scored, domain.ScoredChunk{Chunk: c, Score: (1 + cos) / 2})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *SQLiteStore) KnowledgeStats(ctx context.Context) (domain.KnowledgeStats, error) {
	var stats domain.KnowledgeStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT source_url) FROM knowledge_chunks`,
	).Scan(&stats.ChunkCount, &stats.SourceCount)
	if err != nil {
		return domain.KnowledgeStats{}, fmt.Errorf("query knowledge stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector packs a float32 vector as a little-endian BLOB.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
