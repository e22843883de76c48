package models

import "time"

// InboxRule maps matching emails in a source mail account to a
// destination storage folder. Attachments of matched emails are
// decrypted with AttachmentPassword before delivery.
type InboxRule struct {
	ID                    string    `db:"id" json:"id"`
	UserID                string    `db:"user_id" json:"-"`
	AccountID             string    `db:"account_id" json:"account_id"` // source mail account
	Name                  string    `db:"name" json:"name"`
	EmailFrom             string    `db:"email_from" json:"email_from"`
	EmailSubject          string    `db:"email_subject" json:"email_subject"`
	AttachmentPassword    string    `db:"attachment_password" json:"attachment_password"` // empty means not encrypted
	DestinationFolderID   string    `db:"destination_folder_id" json:"destination_folder_id"`
	DestinationFolderName string    `db:"destination_folder_name" json:"destination_folder_name"`
	DestinationAccountID  string    `db:"destination_account_id" json:"destination_account_id"`
	LastUpdateAt          time.Time `db:"last_update_at" json:"last_update_at"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}
