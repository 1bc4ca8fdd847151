package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge/taskforge/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for dashboard seeds.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func seedTable(kind Kind) (table, column string) {
	if kind == KindLogs {
		return "user_dashboard_logs", "log_id"
	}
	return "user_dashboard_tasks", "task_id"
}

// SeedIDs returns the pinned identifiers for a user and kind, in insertion
// order.
func (r *Repository) SeedIDs(ctx context.Context, userID int64, kind Kind) ([]int64, error) {
	table, column := seedTable(kind)
	rows, err := r.pool.Query(ctx,
		`SELECT `+column+` FROM `+table+` WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CandidateIDs selects up to limit entities owned by or assigned to the user
// that are not in a terminal state. Entities with a deadline sort before
// those without; nearest deadline first; ties broken by most recent creation.
func (r *Repository) CandidateIDs(ctx context.Context, userID int64, kind Kind, limit int) ([]int64, error) {
	var query string
	if kind == KindLogs {
		query = `
			SELECT l.id
			FROM logs l
			JOIN tasks t ON t.id = l.task_id
			WHERE l.author_id = $1
			  AND t.status NOT IN ('done', 'archived')
			ORDER BY (t.deadline IS NULL), t.deadline ASC, l.created_at DESC
			LIMIT $2`
	} else {
		query = `
			SELECT id
			FROM tasks
			WHERE (created_by = $1 OR assignee_id = $1)
			  AND status NOT IN ('done', 'archived')
			ORDER BY (deadline IS NULL), deadline ASC, created_at DESC
			LIMIT $2`
	}
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertSeeds persists the pinned identifiers in one transaction: either the
// whole set pins or none of it does, so a failure can never leave a partial
// pin that later reads mistake for a complete one. Conflicting rows are left
// alone so a racing double-seed converges on the same set.
func (r *Repository) InsertSeeds(ctx context.Context, userID int64, kind Kind, ids []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return insertSeeds(ctx, tx, userID, kind, ids)
	})
}

// ReplaceSeeds atomically swaps the pinned set for a user and kind. An empty
// ids slice clears it.
func (r *Repository) ReplaceSeeds(ctx context.Context, userID int64, kind Kind, ids []int64) error {
	table, _ := seedTable(kind)
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return insertSeeds(ctx, tx, userID, kind, ids)
	})
}

func insertSeeds(ctx context.Context, tx pgx.Tx, userID int64, kind Kind, ids []int64) error {
	table, column := seedTable(kind)
	for position, id := range ids {
		_, err := tx.Exec(ctx,
			`INSERT INTO `+table+` (user_id, `+column+`, position, created_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (user_id, `+column+`) DO NOTHING`,
			userID, id, position)
		if err != nil {
			return err
		}
	}
	return nil
}
