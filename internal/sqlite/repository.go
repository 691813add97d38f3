package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/mastodon-bridge/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		subject_id       TEXT PRIMARY KEY,
		mastodon_handle  TEXT NOT NULL,
		access_token     TEXT NOT NULL,
		mastodon_user_id TEXT NOT NULL DEFAULT '',
		pds              TEXT NOT NULL DEFAULT '',
		updated_at       TIMESTAMP NOT NULL
	)`

// Repository implements domain.ConfigLoader using SQLite. It is an
// alternative to the YAML file for deployments where the linking tool writes
// to a database.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the SQLite database at path, verifies the connection
// and creates the schema if needed. The caller should call Close when the
// repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertUser inserts or replaces a user record. The gateway itself never
// calls it; cmd/users does.
func (r *Repository) UpsertUser(ctx context.Context, user domain.UserRecord) error {
	if user.SubjectID == "" {
		return errors.New("upsert user: subject id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (subject_id, mastodon_handle, access_token, mastodon_user_id, pds, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id) DO UPDATE SET
			mastodon_handle = excluded.mastodon_handle,
			access_token = excluded.access_token,
			mastodon_user_id = excluded.mastodon_user_id,
			pds = excluded.pds,
			updated_at = excluded.updated_at`,
		user.SubjectID,
		user.MastodonHandle,
		user.AccessToken,
		user.MastodonUserID,
		user.PDS,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.SubjectID, err)
	}
	return nil
}

// GetUser retrieves a single user. Returns nil if the subject is unknown.
// cmd/users uses it to tell inserts from updates.
func (r *Repository) GetUser(ctx context.Context, subject string) (*domain.UserRecord, error) {
	var u domain.UserRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT subject_id, mastodon_handle, access_token, mastodon_user_id, pds
		FROM users WHERE subject_id = ?`, subject,
	).Scan(&u.SubjectID, &u.MastodonHandle, &u.AccessToken, &u.MastodonUserID, &u.PDS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", subject, err)
	}
	return &u, nil
}

// LoadConfig reads every user into a fresh snapshot.
func (r *Repository) LoadConfig(ctx context.Context) (*domain.Config, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject_id, mastodon_handle, access_token, mastodon_user_id, pds
		FROM users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	cfg := &domain.Config{Users: map[string]domain.UserRecord{}}
	for rows.Next() {
		var u domain.UserRecord
		if err := rows.Scan(&u.SubjectID, &u.MastodonHandle, &u.AccessToken, &u.MastodonUserID, &u.PDS); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		cfg.Users[u.SubjectID] = u
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return cfg, nil
}
