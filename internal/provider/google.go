package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/pkg/models"
)

// expirySkew treats tokens this close to expiry as expired, so a session
// started just before the deadline does not die mid-sweep.
const expirySkew = 60 * time.Second

// GoogleClient is an authenticated session against the Gmail and Drive APIs
// for one linked account. It implements MailReader and StorageWriter.
type GoogleClient struct {
	account *models.LinkedAccount
	source  oauth2.TokenSource
	logger  *slog.Logger

	lookbackDays int
	maxResults   int64
	timeout      time.Duration

	gmailSvc *gmail.Service
	driveSvc *drive.Service
	closed   bool
}

// newGoogleClient binds a client to the account's credential, refreshing and
// persisting the token first when it is expired or about to expire.
func newGoogleClient(ctx context.Context, r *Registry, account *models.LinkedAccount) (*GoogleClient, error) {
	if !r.cfg.GoogleEnabled() {
		return nil, fmt.Errorf("google client id/secret not configured: %w", ErrAuthentication)
	}

	tok, err := account.Token()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrAuthentication)
	}

	conf := &oauth2.Config{
		ClientID:     r.cfg.GoogleClientID,
		ClientSecret: r.cfg.GoogleClientSecret,
		Endpoint:     googleoauth.Endpoint,
	}

	if !tok.Valid() || time.Until(tok.Expiry) < expirySkew {
		fresh, err := conf.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("failed to refresh token for account %s: %v: %w", account.ID, err, ErrAuthentication)
		}
		switch err := r.store.UpdateAccountToken(ctx, account.ID, tok.RefreshToken, fresh); {
		case err == nil:
			tok = fresh
			r.logger.Info("refreshed provider token", "account_id", account.ID)
		case errors.Is(err, database.ErrTokenConflict):
			// A concurrent refresh already persisted a newer token; use it.
			current, err := r.store.GetAccount(ctx, account.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to re-read account %s after refresh race: %w", account.ID, err)
			}
			tok, err = current.Token()
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, ErrAuthentication)
			}
		default:
			return nil, err
		}
	}

	return &GoogleClient{
		account:      account,
		source:       conf.TokenSource(ctx, tok),
		logger:       r.logger.With("account_id", account.ID),
		lookbackDays: r.cfg.SweepLookbackDays,
		maxResults:   r.cfg.SweepMaxResults,
		timeout:      r.cfg.ProviderTimeout,
	}, nil
}

func (c *GoogleClient) mail(ctx context.Context) (*gmail.Service, error) {
	if c.gmailSvc != nil {
		return c.gmailSvc, nil
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(c.source))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	c.gmailSvc = svc
	return svc, nil
}

func (c *GoogleClient) drive(ctx context.Context) (*drive.Service, error) {
	if c.driveSvc != nil {
		return c.driveSvc, nil
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(c.source))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	c.driveSvc = svc
	return svc, nil
}

// SearchMessages lists inbox messages with attachments matching sender and
// subject, within the configured lookback window. Matching semantics are
// Gmail's own query syntax.
func (c *GoogleClient) SearchMessages(ctx context.Context, fromAddress, subjectContains string) ([]MessageSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.mail(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("has:attachment newer_than:%dd in:INBOX from:%s subject:%s",
		c.lookbackDays, fromAddress, subjectContains)

	resp, err := svc.Users.Messages.List("me").
		Q(query).
		IncludeSpamTrash(false).
		MaxResults(c.maxResults).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	summaries := make([]MessageSummary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		summaries = append(summaries, MessageSummary{ID: m.Id, ThreadID: m.ThreadId})
	}
	return summaries, nil
}

// GetMessage fetches a full message and flattens its MIME part tree.
func (c *GoogleClient) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.mail(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Messages.Get("me", messageID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	msg := &Message{ID: resp.Id}
	if resp.Payload != nil {
		collectParts(resp.Payload.Parts, msg)
	}
	return msg, nil
}

func collectParts(parts []*gmail.MessagePart, msg *Message) {
	for _, p := range parts {
		part := MessagePart{MimeType: p.MimeType, Filename: p.Filename}
		if p.Body != nil {
			part.AttachmentID = p.Body.AttachmentId
		}
		msg.Parts = append(msg.Parts, part)
		// Multipart containers nest their children.
		collectParts(p.Parts, msg)
	}
}

// GetAttachment downloads an attachment and decodes it to raw bytes.
func (c *GoogleClient) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.mail(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %s of message %s: %w", attachmentID, messageID, err)
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(resp.Data, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	return data, nil
}

// UploadFile creates a file in the destination Drive folder. Drive's
// files.create only makes the file visible once the upload completed, so a
// failed upload leaves nothing behind under the final name.
func (c *GoogleClient) UploadFile(ctx context.Context, data []byte, mimeType, fileName, folderID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := c.drive(ctx)
	if err != nil {
		return "", err
	}

	meta := &drive.File{
		Name:    fileName,
		Parents: []string{folderID},
	}
	created, err := svc.Files.Create(meta).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file %q: %w", fileName, err)
	}

	c.logger.Debug("uploaded file to drive", "file", fileName, "folder_id", folderID, "remote_id", created.Id)
	return created.Id, nil
}

// Close releases the session. Safe to call more than once and on a client
// whose construction partially failed.
func (c *GoogleClient) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	c.gmailSvc = nil
	c.driveSvc = nil
	return nil
}
