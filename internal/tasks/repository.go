package tasks

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge/taskforge/internal/shared"
)

// Repository defines data access methods for tasks.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Task, int, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, task Task) (Task, error)
	Update(ctx context.Context, id int64, task Task) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const taskColumns = `id, title, description, status, deadline, created_by, assignee_id, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Task, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, filters.Status)
	}
	if filters.AssigneeID != nil {
		argCount++
		where += ` AND assignee_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.AssigneeID)
	}
	if filters.Search != "" {
		argCount++
		where += ` AND title ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, pageSize := shared.ClampPage(filters.Page, filters.PageSize)
	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC, id DESC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, pageSize)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, (page-1)*pageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Deadline, &t.CreatedBy, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Task, error) {
	var t Task
	err := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Deadline, &t.CreatedBy, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, shared.ErrNotFound
	}
	return t, err
}

func (r *repository) Create(ctx context.Context, task Task) (Task, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, status, deadline, created_by, assignee_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, created_at, updated_at`,
		task.Title, task.Description, task.Status, task.Deadline, task.CreatedBy, task.AssigneeID,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	return task, err
}

func (r *repository) Update(ctx context.Context, id int64, task Task) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, status = $4, deadline = $5, assignee_id = $6, updated_at = now()
		WHERE id = $1`,
		id, task.Title, task.Description, task.Status, task.Deadline, task.AssigneeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
