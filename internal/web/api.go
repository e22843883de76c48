package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/pkg/models"
)

func (s *Server) handleListAccounts(c echo.Context) error {
	accounts, err := s.db.GetAccountsForUser(c.Request().Context(), sessionUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"linked_accounts": accounts})
}

// handleGetAccount returns one linked account. Constructing a provider
// client on the way forces a token refresh when the stored credential is
// stale, so the UI always sees a live account.
func (s *Server) handleGetAccount(c echo.Context) error {
	ctx := c.Request().Context()
	account, err := s.db.GetAccountForUser(ctx, sessionUserID(c), c.Param("account_id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return err
	}

	if account.AccountType.Kind() == models.KindMail {
		reader, err := s.providers.MailReader(ctx, account)
		if err != nil {
			s.logger.Warn("account credential check failed", "account_id", account.ID, "error", err)
		} else {
			reader.Close()
			// Re-read in case the construction refreshed the token.
			if fresh, err := s.db.GetAccountForUser(ctx, sessionUserID(c), account.ID); err == nil {
				account = fresh
			}
		}
	}

	return c.JSON(http.StatusOK, account)
}

type ruleRequest struct {
	Name                  string `json:"name"`
	EmailFrom             string `json:"email_from"`
	EmailSubject          string `json:"email_subject"`
	AttachmentPassword    string `json:"attachment_password"`
	DestinationFolderID   string `json:"destination_folder_id"`
	DestinationFolderName string `json:"destination_folder_name"`
	DestinationAccountID  string `json:"destination_account_id"`
}

func (s *Server) handleListRules(c echo.Context) error {
	rules, err := s.db.GetRulesForAccountAndUser(c.Request().Context(), c.Param("account_id"), sessionUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"inbox_rules": rules})
}

func (s *Server) handleCreateRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	userID := sessionUserID(c)
	accountID := c.Param("account_id")

	// Both ends of the rule must be accounts the caller owns, and of the
	// right capability.
	source, err := s.db.GetAccountForUser(ctx, userID, accountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown source account")
	}
	if source.AccountType.Kind() != models.KindMail {
		return echo.NewHTTPError(http.StatusBadRequest, "source account is not a mail account")
	}
	dest, err := s.db.GetAccountForUser(ctx, userID, req.DestinationAccountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown destination account")
	}
	if dest.AccountType.Kind() != models.KindStorage {
		return echo.NewHTTPError(http.StatusBadRequest, "destination account is not a storage account")
	}

	rule := &models.InboxRule{
		UserID:                userID,
		AccountID:             accountID,
		Name:                  req.Name,
		EmailFrom:             req.EmailFrom,
		EmailSubject:          req.EmailSubject,
		AttachmentPassword:    req.AttachmentPassword,
		DestinationFolderID:   req.DestinationFolderID,
		DestinationFolderName: req.DestinationFolderName,
		DestinationAccountID:  req.DestinationAccountID,
	}
	if err := s.db.CreateRule(ctx, rule); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(c echo.Context) error {
	var req ruleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	userID := sessionUserID(c)

	dest, err := s.db.GetAccountForUser(ctx, userID, req.DestinationAccountID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown destination account")
	}
	if dest.AccountType.Kind() != models.KindStorage {
		return echo.NewHTTPError(http.StatusBadRequest, "destination account is not a storage account")
	}

	rule := &models.InboxRule{
		ID:                    c.Param("rule_id"),
		UserID:                userID,
		AccountID:             c.Param("account_id"),
		Name:                  req.Name,
		EmailFrom:             req.EmailFrom,
		EmailSubject:          req.EmailSubject,
		AttachmentPassword:    req.AttachmentPassword,
		DestinationFolderID:   req.DestinationFolderID,
		DestinationFolderName: req.DestinationFolderName,
		DestinationAccountID:  req.DestinationAccountID,
	}
	if err := s.db.UpdateRule(ctx, rule); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return err
	}

	return c.JSON(http.StatusOK, rule)
}

// handleRunTask triggers a sweep outside the schedule. Fire and forget: the
// response says nothing about the sweep's eventual outcome.
func (s *Server) handleRunTask(c echo.Context) error {
	s.sweeper.TriggerNow()
	return c.String(http.StatusOK, "Ok")
}
