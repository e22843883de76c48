// Package provider implements clients for external mail and storage providers.
package provider

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/atulm/billdrop/pkg/models"
)

// ErrAuthentication is returned when a client cannot be constructed: unknown
// account, missing client credentials, or a rejected token refresh.
var ErrAuthentication = errors.New("provider authentication failed")

// MessageSummary is one hit of a mailbox search.
type MessageSummary struct {
	ID       string
	ThreadID string
}

// MessagePart is a single MIME part of a fetched message.
type MessagePart struct {
	MimeType     string
	Filename     string
	AttachmentID string
}

// Message is a fetched email with its MIME parts.
type Message struct {
	ID    string
	Parts []MessagePart
}

// MailReader reads a mail account: search, fetch, download attachments.
// Search matching is provider-defined keyword search, best effort.
type MailReader interface {
	SearchMessages(ctx context.Context, fromAddress, subjectContains string) ([]MessageSummary, error)
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	// GetAttachment returns the decoded raw bytes of an attachment.
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	Close() error
}

// StorageWriter uploads files into a storage account.
type StorageWriter interface {
	// UploadFile creates a file in the destination folder and returns the
	// remote file id. A failed upload must not leave a partial file visible
	// under the final name.
	UploadFile(ctx context.Context, data []byte, mimeType, fileName, folderID string) (string, error)
	Close() error
}

// TokenStore is the credential store a client refreshes tokens through.
// *database.DB satisfies it.
type TokenStore interface {
	GetAccount(ctx context.Context, id string) (*models.LinkedAccount, error)
	UpdateAccountToken(ctx context.Context, id, prevRefreshToken string, tok *oauth2.Token) error
}

// Factory constructs provider clients for linked accounts.
type Factory interface {
	MailReader(ctx context.Context, account *models.LinkedAccount) (MailReader, error)
	MailReaderByID(ctx context.Context, accountID string) (MailReader, error)
	StorageWriterByID(ctx context.Context, accountID string) (StorageWriter, error)
}
