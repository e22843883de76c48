package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atulm/billdrop/pkg/models"
)

// CreateRule creates a new inbox rule
func (db *DB) CreateRule(ctx context.Context, rule *models.InboxRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO inbox_rules
			(id, user_id, account_id, name, email_from, email_subject, attachment_password,
			 destination_folder_id, destination_folder_name, destination_account_id,
			 last_update_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		rule.ID,
		rule.UserID,
		rule.AccountID,
		rule.Name,
		rule.EmailFrom,
		rule.EmailSubject,
		rule.AttachmentPassword,
		rule.DestinationFolderID,
		rule.DestinationFolderName,
		rule.DestinationAccountID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create inbox rule: %w", err)
	}
	rule.CreatedAt = now
	rule.LastUpdateAt = now
	return nil
}

// UpdateRule updates an inbox rule, scoped to its owning user and account
func (db *DB) UpdateRule(ctx context.Context, rule *models.InboxRule) error {
	now := time.Now().UTC()
	query := `
		UPDATE inbox_rules
		SET name = ?, email_from = ?, email_subject = ?, attachment_password = ?,
		    destination_folder_id = ?, destination_folder_name = ?, destination_account_id = ?,
		    last_update_at = ?
		WHERE id = ? AND account_id = ? AND user_id = ?
	`
	res, err := db.ExecContext(ctx, query,
		rule.Name,
		rule.EmailFrom,
		rule.EmailSubject,
		rule.AttachmentPassword,
		rule.DestinationFolderID,
		rule.DestinationFolderName,
		rule.DestinationAccountID,
		now,
		rule.ID,
		rule.AccountID,
		rule.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update inbox rule: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	rule.LastUpdateAt = now
	return nil
}

// GetRule returns an inbox rule by ID
func (db *DB) GetRule(ctx context.Context, id string) (*models.InboxRule, error) {
	var rule models.InboxRule
	query := `SELECT * FROM inbox_rules WHERE id = ?`
	err := db.GetContext(ctx, &rule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox rule: %w", err)
	}
	return &rule, nil
}

// GetRulesForAccount returns all rules for a mail account in creation order.
// The pipeline iterates these in a stable order.
func (db *DB) GetRulesForAccount(ctx context.Context, accountID string) ([]*models.InboxRule, error) {
	var rules []*models.InboxRule
	query := `SELECT * FROM inbox_rules WHERE account_id = ? ORDER BY created_at, id`
	err := db.SelectContext(ctx, &rules, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox rules: %w", err)
	}
	return rules, nil
}

// GetRulesForAccountAndUser returns the rules of an account owned by a user
func (db *DB) GetRulesForAccountAndUser(ctx context.Context, accountID, userID string) ([]*models.InboxRule, error) {
	var rules []*models.InboxRule
	query := `SELECT * FROM inbox_rules WHERE account_id = ? AND user_id = ? ORDER BY created_at, id`
	err := db.SelectContext(ctx, &rules, query, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox rules: %w", err)
	}
	return rules, nil
}
