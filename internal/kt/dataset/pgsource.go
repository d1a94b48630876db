package dataset

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultQuery selects interactions in the column order ScanRows expects.
const DefaultQuery = `SELECT user_id::text, skill_id, correct, COALESCE(confidence, 0), COALESCE(difficulty_combined, 0)
FROM kt_interactions
WHERE skill_id IS NOT NULL
ORDER BY user_id, answered_at, id`

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OpenPool connects to Postgres and verifies the connection.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	return pool, nil
}

// LoadPostgres runs query (DefaultQuery when empty) and scans each row as
// (learner, skill, correct, confidence, difficulty).
func LoadPostgres(ctx context.Context, q Querier, query string) ([]Row, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (Row, error) {
		var row Row
		var skill, correct int64
		if err := r.Scan(&row.LearnerID, &skill, &correct, &row.Confidence, &row.Difficulty); err != nil {
			return Row{}, err
		}
		row.SkillID, row.Correct = int(skill), int(correct)
		return row, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan interactions: %w", err)
	}
	return out, nil
}
