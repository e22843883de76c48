package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/internal/provider"
	"github.com/atulm/billdrop/pkg/models"
)

// sweepAccount processes every rule of one mail account. Errors here are
// terminal for this account only; they are logged and never propagated to
// the scheduler.
func (s *Sweeper) sweepAccount(ctx context.Context, unit models.AccountRuleCount, cache *clientCache) {
	logger := s.logger.With("account_id", unit.AccountID)
	logger.Info("processing account", "rules", unit.RuleCount)

	account, err := s.db.GetAccount(ctx, unit.AccountID)
	if err != nil {
		logger.Error("account disappeared before sweep", "error", err)
		return
	}

	reader, err := s.providers.MailReader(ctx, account)
	if err != nil {
		logger.Error("failed to open mail session", "error", err)
		return
	}
	defer reader.Close()

	rules, err := s.db.GetRulesForAccount(ctx, unit.AccountID)
	if err != nil {
		logger.Error("failed to load rules", "error", err)
		return
	}

	for _, rule := range rules {
		s.applyRule(ctx, logger, reader, cache, account, rule)
	}
}

// applyRule searches the inbox for one rule and delivers every new match.
// A failed search skips this rule only.
func (s *Sweeper) applyRule(ctx context.Context, logger *slog.Logger, reader provider.MailReader, cache *clientCache, account *models.LinkedAccount, rule *models.InboxRule) {
	logger = logger.With("rule_id", rule.ID)

	summaries, err := reader.SearchMessages(ctx, rule.EmailFrom, rule.EmailSubject)
	if err != nil {
		logger.Error("mail search failed, skipping rule", "error", err)
		return
	}

	for _, summary := range summaries {
		processed, err := s.db.IsEmailProcessed(ctx, account.ID, summary.ID)
		if err != nil {
			logger.Error("ledger check failed", "email_id", summary.ID, "error", err)
			continue
		}
		if processed {
			continue
		}

		if err := s.deliverEmail(ctx, logger, reader, cache, account, rule, summary.ID); err != nil {
			// Not marked processed; the next sweep retries it.
			logger.Error("failed to deliver email", "email_id", summary.ID, "error", err)
		}
	}
}

// deliverEmail fetches one email, extracts its PDF attachments, decrypts and
// uploads them, then records the email in the ledger. The email is marked
// processed only when every selected attachment was delivered; a partial
// failure leaves it unmarked so the remaining attachments are retried on the
// next sweep.
func (s *Sweeper) deliverEmail(ctx context.Context, logger *slog.Logger, reader provider.MailReader, cache *clientCache, account *models.LinkedAccount, rule *models.InboxRule, emailID string) error {
	msg, err := reader.GetMessage(ctx, emailID)
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	parts := selectPDFParts(msg.Parts)
	if len(parts) > 0 {
		tmpDir, err := os.MkdirTemp("", "billdrop-sweep-")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		var failed int
		for _, part := range parts {
			if err := s.deliverAttachment(ctx, reader, cache, rule, emailID, part, tmpDir); err != nil {
				logger.Error("failed to deliver attachment",
					"email_id", emailID, "attachment", part.Filename, "error", err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("delivered %d of %d attachments", len(parts)-failed, len(parts))
		}
	}

	if err := s.db.MarkEmailProcessed(ctx, account.ID, emailID); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			// A concurrent run already delivered this email.
			return nil
		}
		return err
	}

	logger.Info("email delivered", "email_id", emailID, "attachments", len(parts))
	return nil
}

// deliverAttachment downloads, decrypts, and uploads one PDF part.
func (s *Sweeper) deliverAttachment(ctx context.Context, reader provider.MailReader, cache *clientCache, rule *models.InboxRule, emailID string, part provider.MessagePart, tmpDir string) error {
	data, err := reader.GetAttachment(ctx, emailID, part.AttachmentID)
	if err != nil {
		return fmt.Errorf("failed to download attachment: %w", err)
	}

	fileName := filepath.Base(part.Filename)
	inPath := filepath.Join(tmpDir, fileName)
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write attachment: %w", err)
	}

	outPath := inPath + ".decrypted"
	if err := s.decryptor.Decrypt(inPath, outPath, rule.AttachmentPassword); err != nil {
		return fmt.Errorf("failed to decrypt %q: %w", fileName, err)
	}

	decrypted, err := os.ReadFile(outPath)
	if err != nil {
		return fmt.Errorf("failed to read decrypted file: %w", err)
	}

	writer, err := cache.storageWriter(ctx, rule.DestinationAccountID)
	if err != nil {
		return fmt.Errorf("failed to open storage session: %w", err)
	}

	if _, err := writer.UploadFile(ctx, decrypted, "application/pdf", fileName, rule.DestinationFolderID); err != nil {
		return fmt.Errorf("failed to upload %q: %w", fileName, err)
	}
	return nil
}

// selectPDFParts picks the MIME parts worth harvesting: declared as PDF or
// generic binary, named *.pdf, and carrying an attachment body.
func selectPDFParts(parts []provider.MessagePart) []provider.MessagePart {
	var selected []provider.MessagePart
	for _, p := range parts {
		if p.MimeType != "application/pdf" && p.MimeType != "application/octet-stream" {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(p.Filename), ".pdf") {
			continue
		}
		if p.AttachmentID == "" {
			continue
		}
		selected = append(selected, p)
	}
	return selected
}
