package repo

import (
	"context"
	"database/sql"
	"strings"

	"obraline/internal/domain"
)

const userColumns = `id,email,username,password_hash,COALESCE(profile_image,''),created_at`

func scanUser(scan func(...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.ProfileImage, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,email,username,password_hash,profile_image,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, strings.ToLower(u.Email), u.Username, u.PasswordHash, nullable(u.ProfileImage), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row.Scan)
}

func (r Repo) UpdateUserProfile(ctx context.Context, tx *sql.Tx, id, username, profileImage string) error {
	var fields []string
	var args []any
	if username != "" {
		fields = append(fields, "username=?")
		args = append(args, username)
	}
	if profileImage != "" {
		fields = append(fields, "profile_image=?")
		args = append(args, profileImage)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE users SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateUserPassword(ctx context.Context, tx *sql.Tx, id, passwordHash string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash=? WHERE id=?`, passwordHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
