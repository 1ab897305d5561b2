package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type User struct {
	ID         string     `json:"id"`
	Handle     string     `json:"handle"`
	Email      *string    `json:"email,omitempty"`
	Role       string     `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type CreateUserInput struct {
	Handle       string
	Email        string
	PasswordHash string
}

func (db *DB) CreateUser(input CreateUserInput) (*User, error) {
	id := NewID()
	var emailPtr *string
	if input.Email != "" {
		emailPtr = &input.Email
	}
	_, err := db.Exec(`
		INSERT INTO users (id, handle, email, password_hash)
		VALUES (?, ?, ?, ?)`, id, input.Handle, emailPtr, input.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &User{
		ID:        id,
		Handle:    input.Handle,
		Email:     emailPtr,
		Role:      "user",
		CreatedAt: time.Now().UTC(),
	}, nil
}

const userColumns = `id, handle, email, role, created_at, last_seen_at`

func scanUser(row *sql.Row, extra ...any) (*User, error) {
	u := &User{}
	var email sql.NullString
	var lastSeen sql.NullTime
	dest := append([]any{&u.ID, &u.Handle, &email, &u.Role, &u.CreatedAt, &lastSeen}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	if lastSeen.Valid {
		u.LastSeenAt = &lastSeen.Time
	}
	return u, nil
}

// GetUserByHandle returns the user and their password hash.
func (db *DB) GetUserByHandle(handle string) (*User, string, error) {
	var passwordHash string
	u, err := scanUser(db.QueryRow(`SELECT `+userColumns+`, password_hash FROM users WHERE handle = ?`, handle), &passwordHash)
	if err != nil {
		return nil, "", err
	}
	return u, passwordHash, nil
}

func (db *DB) GetUserByID(id string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// TouchLastSeen updates the user's last_seen_at timestamp.
func (db *DB) TouchLastSeen(userID string) error {
	_, err := db.Exec("UPDATE users SET last_seen_at = datetime('now') WHERE id = ?", userID)
	return err
}
