package storage

import (
	"encoding/json"

	"loom/internal/conversation"
)

// SaveBlocks replaces the persisted summary blocks of a branch. The
// covered messages ride along as JSON for audit and rollback.
func (db *DB) SaveBlocks(sessionID, branch string, blocks []conversation.SummaryBlock) error {
	return db.WithTx(func(tx *Tx) error {
		if _, err := tx.Exec(
			"DELETE FROM summary_blocks WHERE session_id = ? AND branch = ?",
			sessionID, branch,
		); err != nil {
			return err
		}
		for _, b := range blocks {
			originals, err := json.Marshal(b.OriginalMessages)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`
				INSERT INTO summary_blocks
					(id, session_id, branch, seq, content, status, message_count,
					 estimated_tokens, original_messages, covered_from, covered_to, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, sessionID, branch, b.Seq, b.Content, string(b.Status), b.MessageCount,
				b.EstimatedTokens, string(originals), b.CoveredFrom, b.CoveredTo, b.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadBlocks reads a branch's summary blocks in sequence order.
func (db *DB) LoadBlocks(sessionID, branch string) ([]conversation.SummaryBlock, error) {
	rows, err := db.Query(`
		SELECT id, seq, content, status, message_count, estimated_tokens,
		       original_messages, covered_from, covered_to, created_at
		FROM summary_blocks
		WHERE session_id = ? AND branch = ? ORDER BY seq`,
		sessionID, branch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	key := conversation.BranchKey(sessionID, branch)
	var blocks []conversation.SummaryBlock
	for rows.Next() {
		b := conversation.SummaryBlock{BranchKey: key}
		var status, originals string
		if err := rows.Scan(&b.ID, &b.Seq, &b.Content, &status, &b.MessageCount,
			&b.EstimatedTokens, &originals, &b.CoveredFrom, &b.CoveredTo, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = conversation.BlockStatus(status)
		if err := json.Unmarshal([]byte(originals), &b.OriginalMessages); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
