package logs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge/taskforge/internal/platform/db"
	"github.com/taskforge/taskforge/internal/shared"
)

// Repository defines data access methods for logs.
type Repository interface {
	Get(ctx context.Context, id int64) (Log, error)
	ListByTask(ctx context.Context, taskID int64) ([]Log, error)
	Create(ctx context.Context, log Log) (Log, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Log, error) {
	var l Log
	err := r.pool.QueryRow(ctx,
		`SELECT id, task_id, author_id, body, created_at FROM logs WHERE id = $1`, id).
		Scan(&l.ID, &l.TaskID, &l.AuthorID, &l.Body, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Log{}, shared.ErrNotFound
	}
	return l, err
}

func (r *repository) ListByTask(ctx context.Context, taskID int64) ([]Log, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, task_id, author_id, body, created_at FROM logs WHERE task_id = $1 ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Log{}
	for rows.Next() {
		var l Log
		if err := rows.Scan(&l.ID, &l.TaskID, &l.AuthorID, &l.Body, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, log Log) (Log, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO logs (task_id, author_id, body, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at`,
		log.TaskID, log.AuthorID, log.Body,
	).Scan(&log.ID, &log.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return Log{}, shared.ErrNotFound
	}
	return log, err
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM logs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
