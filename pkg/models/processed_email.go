package models

import "time"

// ProcessedEmail is the de-duplication marker for a delivered email.
// (account_id, email_id) is unique: a second delivery attempt for the
// same email must find this row and skip.
type ProcessedEmail struct {
	ID          string    `db:"id"`
	EmailID     string    `db:"email_id"` // provider-side message id
	AccountID   string    `db:"account_id"`
	ProcessedAt time.Time `db:"processed_at"`
}

// AccountRuleCount is one row of the sweep's account discovery query:
// a mail account together with how many rules reference it. The count
// is informational only.
type AccountRuleCount struct {
	AccountID   string      `db:"account_id"`
	AccountType AccountType `db:"account_type"`
	RuleCount   int         `db:"rule_count"`
}
