package chat

import (
	"context"
	"database/sql"
	"time"
)

const (
	RoleUser   = "user"
	RoleBot    = "bot"
	RoleSystem = "system"
)

// Entry is one transcript line. Append-only; bot entries are written only
// once the full streamed answer is known.
type Entry struct {
	ID        string    `json:"id"`
	Owner     string    `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, owner, role, content string) error {
	query := `INSERT INTO chats (owner_id, role, content) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, owner, role, content)
	return err
}

func (r *PostgresRepo) History(ctx context.Context, owner string) ([]Entry, error) {
	query := `SELECT id, owner_id, role, content, created_at FROM chats WHERE owner_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Owner, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepo) DeleteByOwner(ctx context.Context, owner string) error {
	query := `DELETE FROM chats WHERE owner_id = $1`
	_, err := r.db.ExecContext(ctx, query, owner)
	return err
}
