package vector

import (
	"context"
	"database/sql"
	"sync"

	"github.com/lib/pq"
)

// PostgresStore persists chunks and serves linear-scan retrieval. Ingestion
// for an owner is serialized against that owner's in-flight queries: Replace
// holds the owner's write lock across the delete-and-repopulate transaction,
// so TopK never observes a half-replaced corpus.
type PostgresStore struct {
	db    *sql.DB
	locks ownerLocks
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Replace atomically swaps the owner's corpus for the given chunks. The store
// is scoped to "current document", not a growing archive: older chunks are
// intentionally invalidated on every new ingestion.
func (s *PostgresStore) Replace(ctx context.Context, owner string, chunks []Chunk) error {
	mu := s.locks.get(owner)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE owner_id = $1`, owner); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_chunks (owner_id, filename, chunk_index, page_number, content, embedding) VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, owner, c.Filename, c.ChunkIndex, c.PageNumber, c.Text, pq.Float32Array(c.Embedding)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// All returns the owner's chunks in storage order.
func (s *PostgresStore) All(ctx context.Context, owner string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, filename, chunk_index, page_number, content, embedding, created_at FROM document_chunks WHERE owner_id = $1 ORDER BY chunk_index ASC`,
		owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var emb pq.Float32Array
		if err := rows.Scan(&c.ID, &c.Owner, &c.Filename, &c.ChunkIndex, &c.PageNumber, &c.Text, &emb, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = []float32(emb)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// TopK ranks the owner's whole corpus against the query vector and returns
// the k best matches. An empty corpus yields an empty result, not an error.
func (s *PostgresStore) TopK(ctx context.Context, owner string, query []float32, k int) ([]Match, error) {
	mu := s.locks.get(owner)
	mu.RLock()
	defer mu.RUnlock()

	chunks, err := s.All(ctx, owner)
	if err != nil {
		return nil, err
	}
	return Rank(chunks, query, k), nil
}

func (s *PostgresStore) CountByOwner(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks WHERE owner_id = $1`, owner).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ownerLocks hands out one RWMutex per owner scope. Entries are never
// reclaimed; the owner population is small and bounded by real users.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func (o *ownerLocks) get(owner string) *sync.RWMutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locks == nil {
		o.locks = make(map[string]*sync.RWMutex)
	}
	if _, ok := o.locks[owner]; !ok {
		o.locks[owner] = &sync.RWMutex{}
	}
	return o.locks[owner]
}
