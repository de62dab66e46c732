package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"obraline/internal/domain"
	"obraline/internal/events"
	"obraline/internal/repo"
)

const minPasswordLen = 8

// SignUp registers a user with a bcrypt-hashed password. Emails are unique
// and stored lowercased.
func (e Engine) SignUp(ctx context.Context, email, username, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, validationf("invalid email %q", email)
	}
	if strings.TrimSpace(username) == "" {
		return domain.User{}, validationf("username is required")
	}
	if len(password) < minPasswordLen {
		return domain.User{}, validationf("password must be at least %d characters", minPasswordLen)
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, validationf("email %s already registered", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           newID(),
		Email:        email,
		Username:     strings.TrimSpace(username),
		PasswordHash: string(hash),
		CreatedAt:    e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

var errInvalidCredentials = errors.New("invalid credentials")

// SignIn verifies the password and issues an HS256 token with the user ID as
// subject.
func (e Engine) SignIn(ctx context.Context, email, password string) (string, domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return "", domain.User{}, errInvalidCredentials
	}
	if err != nil {
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, errInvalidCredentials
	}
	token, err := e.issueToken(u.ID)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

func (e Engine) jwtSecret() string {
	if e.Config != nil && e.Config.Auth.JWTSecret != "" {
		return e.Config.Auth.JWTSecret
	}
	return ""
}

func (e Engine) issueToken(userID string) (string, error) {
	secret := e.jwtSecret()
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := e.now().UTC()
	ttl := time.Duration(e.Config.TokenTTLHoursOrDefault()) * time.Hour
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ChangePassword re-authenticates with the current password before storing a
// new hash.
func (e Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return errInvalidCredentials
	}
	if len(next) < minPasswordLen {
		return validationf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUserPassword(ctx, tx, userID, string(hash)); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "user.password_changed", "", "user", userID, userID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateProfile changes the username and profile image URL; empty fields are
// left untouched.
func (e Engine) UpdateProfile(ctx context.Context, userID, username, profileImage string) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateUserProfile(ctx, tx, userID, username, profileImage); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.profile_updated", "", "user", userID, userID, nil); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// CreateAPIKey mints a service key for a user and returns the raw value once.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (string, domain.APIKey, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := newID()
	key := domain.APIKey{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// IsInvalidCredentials reports whether err is the authentication failure.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, errInvalidCredentials)
}
