package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Session is a persisted conversation session.
type Session struct {
	ID        string          `json:"id"`
	Model     string          `json:"model"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateSession inserts a session row. An existing row with the same id
// is left untouched.
func (db *DB) CreateSession(id, model string, metadata json.RawMessage) (*Session, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	now := time.Now()

	_, err := db.Exec(`
		INSERT INTO sessions (id, model, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, model, string(metadata), now, now,
	)
	if err != nil {
		return nil, err
	}
	return db.GetSession(id)
}

// GetSession loads a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	var metadata string
	err := db.QueryRow(`
		SELECT id, model, metadata, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Model, &metadata, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Metadata = json.RawMessage(metadata)
	return &s, nil
}

// ListSessions returns all sessions, most recently updated first.
func (db *DB) ListSessions() ([]*Session, error) {
	rows, err := db.Query(`
		SELECT id, model, metadata, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var metadata string
		if err := rows.Scan(&s.ID, &s.Model, &metadata, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Metadata = json.RawMessage(metadata)
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

// TouchSession bumps a session's updated_at.
func (db *DB) TouchSession(id string) error {
	res, err := db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and, via foreign keys, its branches,
// messages, blocks and facts.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
