// Package auth persists the single UI account and its API tokens in SQLite.
// The UI is single-user: registration succeeds once, then the endpoint
// reports "already set up".
package auth

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// User is the registered account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"`
}

// Store handles SQLite persistence for the account and its tokens.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the auth database at the given path.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open auth database: %w", err)
	}

	if err := createAuthSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create auth schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func createAuthSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);
		CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens(user_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NeedsSetup reports whether no account has been registered yet.
func (s *Store) NeedsSetup() (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// Register creates the account and returns a fresh token. Fails once an
// account exists.
func (s *Store) Register(username, password string) (*User, string, error) {
	if username == "" || password == "" {
		return nil, "", fmt.Errorf("username and password are required")
	}

	needsSetup, err := s.NeedsSetup()
	if err != nil {
		return nil, "", err
	}
	if !needsSetup {
		return nil, "", fmt.Errorf("an account already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := s.db.Exec(`
		INSERT INTO users (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`, username, string(hash), now)
	if err != nil {
		return nil, "", err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, "", err
	}

	user := &User{ID: id, Username: username, CreatedAt: now}
	token, err := s.issueToken(id)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies the credentials and returns a fresh token.
func (s *Store) Login(username, password string) (*User, string, error) {
	var user User
	var hash string
	err := s.db.QueryRow(`
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &hash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("invalid username or password")
	}
	if err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, "", fmt.Errorf("invalid username or password")
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// Validate resolves a token to its user, or nil when the token is unknown.
func (s *Store) Validate(token string) (*User, error) {
	if token == "" {
		return nil, nil
	}

	var user User
	err := s.db.QueryRow(`
		SELECT u.id, u.username, u.created_at
		FROM tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = ?
	`, token).Scan(&user.ID, &user.Username, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Revoke deletes a token. Revoking an unknown token is not an error.
func (s *Store) Revoke(token string) error {
	_, err := s.db.Exec(`DELETE FROM tokens WHERE token = ?`, token)
	return err
}

func (s *Store) issueToken(userID int64) (string, error) {
	token := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO tokens (token, user_id, created_at)
		VALUES (?, ?, ?)
	`, token, userID, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return token, nil
}
