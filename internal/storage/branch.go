package storage

import (
	"time"

	"loom/internal/conversation"
	"loom/internal/facts"
)

// SaveBranch writes a branch snapshot: its row, messages, and facts, all
// in one transaction. The previous snapshot of the branch is replaced.
func (db *DB) SaveBranch(state *conversation.BranchState) error {
	return db.WithTx(func(tx *Tx) error {
		createdAt := state.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.Exec(`
			INSERT INTO branches (session_id, name, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id, name) DO NOTHING`,
			state.SessionID, state.Branch, createdAt,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(
			"DELETE FROM messages WHERE session_id = ? AND branch = ?",
			state.SessionID, state.Branch,
		); err != nil {
			return err
		}
		for i, m := range state.Messages {
			var prompt, completion, total int
			var durationMs int64
			var model string
			if m.Metrics != nil {
				prompt = m.Metrics.PromptTokens
				completion = m.Metrics.CompletionTokens
				total = m.Metrics.TotalTokens
				durationMs = m.Metrics.DurationMillis
				model = m.Metrics.Model
			}
			if _, err := tx.Exec(`
				INSERT INTO messages
					(id, session_id, branch, seq, role, content,
					 prompt_tokens, completion_tokens, total_tokens, duration_ms, model, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, state.SessionID, state.Branch, i, string(m.Role), m.Content,
				prompt, completion, total, durationMs, model, m.Timestamp,
			); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(
			"DELETE FROM facts WHERE session_id = ? AND branch = ?",
			state.SessionID, state.Branch,
		); err != nil {
			return err
		}
		if state.Facts != nil {
			pos := 0
			for _, cat := range state.Facts.Categories() {
				for _, f := range state.Facts.SortedEntries(cat) {
					if _, err := tx.Exec(`
						INSERT INTO facts (session_id, branch, category, key, value, position)
						VALUES (?, ?, ?, ?, ?, ?)`,
						state.SessionID, state.Branch, f.Category, f.Key, f.Value, pos,
					); err != nil {
						return err
					}
					pos++
				}
			}
		}

		return nil
	})
}

// LoadBranch reads a branch snapshot. ErrNotFound when the branch row
// does not exist.
func (db *DB) LoadBranch(sessionID, branch string) (*conversation.BranchState, error) {
	state := &conversation.BranchState{
		Key:       conversation.BranchKey(sessionID, branch),
		SessionID: sessionID,
		Branch:    branch,
		Facts:     facts.NewGroups(),
	}

	err := db.QueryRow(
		"SELECT created_at FROM branches WHERE session_id = ? AND name = ?",
		sessionID, branch,
	).Scan(&state.CreatedAt)
	if err != nil {
		return nil, ErrNotFound
	}

	rows, err := db.Query(`
		SELECT id, role, content, prompt_tokens, completion_tokens, total_tokens,
		       duration_ms, model, created_at
		FROM messages WHERE session_id = ? AND branch = ? ORDER BY seq`,
		sessionID, branch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m conversation.Message
		var role string
		var metrics conversation.RequestMetrics
		if err := rows.Scan(&m.ID, &role, &m.Content,
			&metrics.PromptTokens, &metrics.CompletionTokens, &metrics.TotalTokens,
			&metrics.DurationMillis, &metrics.Model, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Role = conversation.Role(role)
		if metrics != (conversation.RequestMetrics{}) {
			m.Metrics = &metrics
		}
		state.Messages = append(state.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	factRows, err := db.Query(`
		SELECT category, key, value FROM facts
		WHERE session_id = ? AND branch = ? ORDER BY position`,
		sessionID, branch,
	)
	if err != nil {
		return nil, err
	}
	defer factRows.Close()

	for factRows.Next() {
		var category, key, value string
		if err := factRows.Scan(&category, &key, &value); err != nil {
			return nil, err
		}
		state.Facts.Put(category, key, value)
	}
	return state, factRows.Err()
}

// ListBranches returns the branch names of a session.
func (db *DB) ListBranches(sessionID string) ([]string, error) {
	rows, err := db.Query(
		"SELECT name FROM branches WHERE session_id = ? ORDER BY name", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteBranch removes a branch and its messages, blocks and facts.
func (db *DB) DeleteBranch(sessionID, branch string) error {
	return db.WithTx(func(tx *Tx) error {
		for _, table := range []string{"messages", "summary_blocks", "facts"} {
			if _, err := tx.Exec(
				"DELETE FROM "+table+" WHERE session_id = ? AND branch = ?",
				sessionID, branch,
			); err != nil {
				return err
			}
		}
		_, err := tx.Exec(
			"DELETE FROM branches WHERE session_id = ? AND name = ?",
			sessionID, branch,
		)
		return err
	})
}
