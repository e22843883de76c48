package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/atulm/billdrop/pkg/models"
)

// GetAccount returns a linked account by ID
func (db *DB) GetAccount(ctx context.Context, id string) (*models.LinkedAccount, error) {
	var account models.LinkedAccount
	query := `SELECT * FROM linked_accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return &account, nil
}

// GetAccountForUser returns a linked account scoped to its owning user
func (db *DB) GetAccountForUser(ctx context.Context, userID, id string) (*models.LinkedAccount, error) {
	var account models.LinkedAccount
	query := `SELECT * FROM linked_accounts WHERE id = ? AND user_id = ?`
	err := db.GetContext(ctx, &account, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return &account, nil
}

// GetAccountsForUser returns all linked accounts of a user
func (db *DB) GetAccountsForUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	var accounts []*models.LinkedAccount
	query := `SELECT * FROM linked_accounts WHERE user_id = ? ORDER BY created_at`
	err := db.SelectContext(ctx, &accounts, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get linked accounts: %w", err)
	}
	return accounts, nil
}

// UpsertLinkedAccount creates a linked account, or updates the token fields
// in place when the same provider identity is re-linked by the same user.
// The natural key is (account_type, account_id, user_id).
func (db *DB) UpsertLinkedAccount(ctx context.Context, account *models.LinkedAccount) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO linked_accounts
			(id, user_id, account_type, account_id, access_token, refresh_token,
			 token_json, user_profile, expires_at, last_update_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_type, account_id, user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_json = excluded.token_json,
			user_profile = excluded.user_profile,
			expires_at = excluded.expires_at,
			last_update_at = excluded.last_update_at
	`
	_, err := db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.AccountType,
		account.AccountID,
		account.AccessToken,
		account.RefreshToken,
		account.TokenJSON,
		account.UserProfile,
		account.ExpiresAt,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert linked account: %w", err)
	}
	account.LastUpdateAt = now
	return nil
}

// UpdateAccountToken persists a refreshed token for an account. The update is
// guarded by the refresh token the refresh was based on: if another refresh
// already rotated it, the write is rejected with ErrTokenConflict and the
// caller should re-read the account instead of clobbering the newer token.
func (db *DB) UpdateAccountToken(ctx context.Context, id, prevRefreshToken string, tok *oauth2.Token) error {
	account := models.LinkedAccount{ID: id}
	if err := account.SetToken(tok); err != nil {
		return err
	}
	if account.RefreshToken == "" {
		// Google omits the refresh token on plain refreshes; keep the stored one.
		account.RefreshToken = prevRefreshToken
	}

	query := `
		UPDATE linked_accounts
		SET access_token = ?, refresh_token = ?, token_json = ?, expires_at = ?, last_update_at = ?
		WHERE id = ? AND refresh_token = ?
	`
	res, err := db.ExecContext(ctx, query,
		account.AccessToken,
		account.RefreshToken,
		account.TokenJSON,
		account.ExpiresAt,
		time.Now().UTC(),
		id,
		prevRefreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to update account token: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := db.GetAccount(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTokenConflict
	}
	return nil
}

// AccountsWithRules returns all mail accounts that have at least one inbox
// rule, with the rule count per account. These are the sweep's units of work.
func (db *DB) AccountsWithRules(ctx context.Context) ([]models.AccountRuleCount, error) {
	var accounts []models.AccountRuleCount
	query := `
		SELECT a.id AS account_id, a.account_type, COUNT(r.id) AS rule_count
		FROM linked_accounts a
		JOIN inbox_rules r ON r.account_id = a.id
		WHERE a.account_type IN ('gmail', 'zoho')
		GROUP BY a.id
		HAVING COUNT(r.id) > 0
	`
	err := db.SelectContext(ctx, &accounts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts with rules: %w", err)
	}
	return accounts, nil
}
