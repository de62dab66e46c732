package repo

import (
	"context"
	"database/sql"

	"obraline/internal/domain"
)

const notificationColumns = `id,user_id,type,COALESCE(project_id,''),COALESCE(task_id,''),COALESCE(message,''),read,read_at,created_at`

func scanNotification(scan func(...any) error) (domain.Notification, error) {
	var n domain.Notification
	var readAt sql.NullString
	err := scan(&n.ID, &n.UserID, &n.Type, &n.ProjectID, &n.TaskID, &n.Message, &n.Read, &readAt, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	if err != nil {
		return n, err
	}
	if readAt.Valid {
		n.ReadAt = &readAt.String
	}
	return n, nil
}

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,project_id,task_id,message,read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, nullable(n.ProjectID), nullable(n.TaskID), nullable(n.Message), n.Read, n.CreatedAt)
	return err
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id)
	return scanNotification(row.Scan)
}

// ListNotifications returns stored notifications for a user, newest first,
// optionally limited to unread ones.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, tx *sql.Tx, id, userID, readAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET read=1, read_at=? WHERE id=? AND user_id=?`, readAt, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
