package models

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// AccountType identifies which external provider an account is linked to.
type AccountType string

const (
	AccountTypeGmail       AccountType = "gmail"
	AccountTypeZoho        AccountType = "zoho"
	AccountTypeGoogleDrive AccountType = "google_drive"
)

// AccountKind classifies an account type by capability.
type AccountKind int

const (
	KindUnknown AccountKind = iota
	KindMail
	KindStorage
)

// Kind returns the capability class of the account type.
func (t AccountType) Kind() AccountKind {
	switch t {
	case AccountTypeGmail, AccountTypeZoho:
		return KindMail
	case AccountTypeGoogleDrive:
		return KindStorage
	default:
		return KindUnknown
	}
}

// MailAccountTypes lists the account types the sweep scans.
func MailAccountTypes() []AccountType {
	return []AccountType{AccountTypeGmail, AccountTypeZoho}
}

// Profile is the provider-side identity attached to a linked account.
type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"profile_picture"`
}

// LinkedAccount represents an OAuth-authenticated external account owned by a user.
type LinkedAccount struct {
	ID           string      `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"-"`
	AccountType  AccountType `db:"account_type" json:"account_type"`
	AccountID    string      `db:"account_id" json:"account_id"` // provider-side identity id
	AccessToken  string      `db:"access_token" json:"-"`
	RefreshToken string      `db:"refresh_token" json:"-"`
	TokenJSON    string      `db:"token_json" json:"-"` // full oauth2 token payload
	UserProfile  string      `db:"user_profile" json:"user_profile"`
	ExpiresAt    time.Time   `db:"expires_at" json:"expires_at"`
	LastUpdateAt time.Time   `db:"last_update_at" json:"last_update_at"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Token decodes the stored token payload.
func (a *LinkedAccount) Token() (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(a.TokenJSON), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token for account %s: %w", a.ID, err)
	}
	return &tok, nil
}

// SetToken stores the token payload and mirrors its hot fields.
func (a *LinkedAccount) SetToken(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	a.TokenJSON = string(raw)
	a.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		a.RefreshToken = tok.RefreshToken
	}
	a.ExpiresAt = tok.Expiry
	return nil
}

// Profile decodes the stored provider profile.
func (a *LinkedAccount) Profile() Profile {
	var p Profile
	_ = json.Unmarshal([]byte(a.UserProfile), &p)
	return p
}
