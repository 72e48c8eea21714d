package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"clubportal/internal/model"
)

// EmailLogRepository is append-only; retention is handled outside the service.
type EmailLogRepository struct {
	db *pgxpool.Pool
}

func NewEmailLogRepository(db *pgxpool.Pool) *EmailLogRepository {
	return &EmailLogRepository{db: db}
}

func (r *EmailLogRepository) Insert(ctx context.Context, e model.EmailLogEntry) error {
	query := `
		INSERT INTO email_log (recipient_id, subject, sent_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := r.db.Exec(ctx, query, e.RecipientID, e.Subject); err != nil {
		return fmt.Errorf("failed to append email log: %w", err)
	}
	return nil
}

// CountOnDay counts entries within the calendar day containing t, in t's
// location. This is the quota's view of "sent today".
func (r *EmailLogRepository) CountOnDay(ctx context.Context, t time.Time) (int, error) {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT COUNT(*) FROM email_log
		WHERE sent_at >= $1 AND sent_at < $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, dayStart, dayEnd).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count email log: %w", err)
	}
	return count, nil
}
