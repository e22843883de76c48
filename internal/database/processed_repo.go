package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IsEmailProcessed reports whether an email was already delivered for this
// account. The pipeline checks this before any download or decrypt work.
func (db *DB) IsEmailProcessed(ctx context.Context, accountID, emailID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM processed_emails WHERE account_id = ? AND email_id = ?`
	if err := db.GetContext(ctx, &count, query, accountID, emailID); err != nil {
		return false, fmt.Errorf("failed to check processed email: %w", err)
	}
	return count > 0, nil
}

// MarkEmailProcessed records an email as delivered. Returns ErrAlreadyExists
// when a concurrent attempt won the race; callers treat that as success.
func (db *DB) MarkEmailProcessed(ctx context.Context, accountID, emailID string) error {
	query := `
		INSERT OR IGNORE INTO processed_emails (id, email_id, account_id, processed_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	`
	result, err := db.ExecContext(ctx, query, uuid.NewString(), emailID, accountID)
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}
