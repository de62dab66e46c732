package repo

import (
	"context"
	"database/sql"
	"strings"

	"obraline/internal/domain"
)

const membershipColumns = `m.id,m.project_id,COALESCE(m.user_id,''),m.email,m.role,m.status,m.invited_at,m.accepted_at`

func scanMembership(scan func(...any) error) (domain.Membership, error) {
	var m domain.Membership
	var acceptedAt sql.NullString
	err := scan(&m.ID, &m.ProjectID, &m.UserID, &m.Email, &m.Role, &m.Status, &m.InvitedAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.String
	}
	return m, nil
}

func (r Repo) InsertMembership(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memberships(id,project_id,user_id,email,role,status,invited_at,accepted_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, nullable(m.UserID), strings.ToLower(m.Email), m.Role, m.Status, m.InvitedAt, nullableStringPtr(m.AcceptedAt))
	return err
}

func (r Repo) GetMembership(ctx context.Context, id string) (domain.Membership, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships m WHERE m.id=?`, id)
	return scanMembership(row.Scan)
}

// GetAcceptedMembership looks up the accepted membership for a user in a
// project. Missing membership is ErrNotFound, not a failure.
func (r Repo) GetAcceptedMembership(ctx context.Context, projectID, userID string) (domain.Membership, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships m WHERE m.project_id=? AND m.user_id=? AND m.status=?`,
		projectID, userID, domain.MembershipAceptado)
	return scanMembership(row.Scan)
}

func (r Repo) GetMembershipByEmail(ctx context.Context, projectID, email string) (domain.Membership, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships m WHERE m.project_id=? AND m.email=?`,
		projectID, strings.ToLower(strings.TrimSpace(email)))
	return scanMembership(row.Scan)
}

// ListMembers returns accepted memberships joined with user profile data.
func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+membershipColumns+`,COALESCE(u.username,'')
FROM memberships m LEFT JOIN users u ON u.id=m.user_id
WHERE m.project_id=? AND m.status=? ORDER BY m.invited_at ASC, m.id ASC`, projectID, domain.MembershipAceptado)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var acceptedAt sql.NullString
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Email, &m.Role, &m.Status, &m.InvitedAt, &acceptedAt, &m.Username); err != nil {
			return nil, err
		}
		if acceptedAt.Valid {
			m.AcceptedAt = &acceptedAt.String
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// ListPendingInvitations returns pending memberships for an email across all
// projects, newest first.
func (r Repo) ListPendingInvitations(ctx context.Context, email string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+membershipColumns+` FROM memberships m WHERE m.email=? AND m.status=? ORDER BY m.invited_at DESC`,
		strings.ToLower(strings.TrimSpace(email)), domain.MembershipPendiente)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) AcceptMembership(ctx context.Context, tx *sql.Tx, id, userID, acceptedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE memberships SET user_id=?, status=?, accepted_at=? WHERE id=? AND status=?`,
		userID, domain.MembershipAceptado, acceptedAt, id, domain.MembershipPendiente)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteMembership(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
