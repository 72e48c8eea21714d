package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clubportal/internal/model"
)

type RunRepository struct {
	db *pgxpool.Pool
}

func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) GetRun(ctx context.Context, id int) (*model.Run, error) {
	query := `
		SELECT id, title, run_date, start_time, lirfs_required, COALESCE(led_by, 0)
		FROM runs
		WHERE id = $1
	`
	var run model.Run
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Title,
		&run.RunDate,
		&run.StartTime,
		&run.LIRFsRequired,
		&run.LedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("run %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// CoverageGaps returns runs in [from, until) whose assigned LIRF count is
// below the required count, ordered by date.
func (r *RunRepository) CoverageGaps(ctx context.Context, from, until time.Time) ([]model.CoverageGap, error) {
	query := `
		SELECT r.id, r.title, r.run_date, r.start_time, r.lirfs_required, COUNT(a.member_id)
		FROM runs r
		LEFT JOIN lirf_assignments a ON a.run_id = r.id
		WHERE r.run_date >= $1 AND r.run_date < $2
		GROUP BY r.id
		HAVING COUNT(a.member_id) < r.lirfs_required
		ORDER BY r.run_date, r.id
	`
	rows, err := r.db.Query(ctx, query, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage gaps: %w", err)
	}
	defer rows.Close()

	var gaps []model.CoverageGap
	for rows.Next() {
		var g model.CoverageGap
		if err := rows.Scan(&g.RunID, &g.Title, &g.RunDate, &g.StartTime, &g.Required, &g.Assigned); err != nil {
			return nil, fmt.Errorf("failed to scan coverage gap: %w", err)
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
