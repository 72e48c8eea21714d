package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clubportal/internal/model"
)

type MemberRepository struct {
	db *pgxpool.Pool
}

func NewMemberRepository(db *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) GetMember(ctx context.Context, id int) (*model.Member, error) {
	query := `
		SELECT id, name, email, role, membership_status, affiliated, email_notifications_enabled
		FROM members
		WHERE id = $1
	`
	m, err := scanMember(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("member %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// ActiveMembers returns members with an active membership, optionally
// restricted to paid/affiliated members.
func (r *MemberRepository) ActiveMembers(ctx context.Context, affiliatedOnly bool) ([]model.Member, error) {
	query := `
		SELECT id, name, email, role, membership_status, affiliated, email_notifications_enabled
		FROM members
		WHERE membership_status = 'active'
	`
	if affiliatedOnly {
		query += ` AND affiliated = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// BookedMembers returns members holding a non-cancelled booking on the run.
func (r *MemberRepository) BookedMembers(ctx context.Context, runID int) ([]model.Member, error) {
	query := `
		SELECT m.id, m.name, m.email, m.role, m.membership_status, m.affiliated, m.email_notifications_enabled
		FROM members m
		JOIN bookings b ON b.member_id = m.id
		WHERE b.run_id = $1 AND b.status <> 'cancelled'
		ORDER BY m.id
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query booked members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// ElevatedActiveMembers returns active LIRFs and admins, the digest audience.
func (r *MemberRepository) ElevatedActiveMembers(ctx context.Context) ([]model.Member, error) {
	query := `
		SELECT id, name, email, role, membership_status, affiliated, email_notifications_enabled
		FROM members
		WHERE membership_status = 'active' AND role IN ('lirf', 'admin')
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query elevated members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Role,
		&m.MembershipStatus,
		&m.Affiliated,
		&m.EmailNotificationsEnabled,
	)
	return m, err
}

func scanMembers(rows pgx.Rows) ([]model.Member, error) {
	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
