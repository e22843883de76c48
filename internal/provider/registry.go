package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atulm/billdrop/internal/config"
	"github.com/atulm/billdrop/pkg/models"
)

// Registry builds provider clients from linked accounts. It implements
// Factory. Dispatch goes through per-capability constructor tables keyed by
// account type, not through string switches at call sites.
type Registry struct {
	cfg    *config.Config
	store  TokenStore
	logger *slog.Logger
}

// NewRegistry creates a provider client registry
func NewRegistry(cfg *config.Config, store TokenStore, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "provider"),
	}
}

type mailConstructor func(ctx context.Context, r *Registry, account *models.LinkedAccount) (MailReader, error)

type storageConstructor func(ctx context.Context, r *Registry, account *models.LinkedAccount) (StorageWriter, error)

var mailConstructors = map[models.AccountType]mailConstructor{
	models.AccountTypeGmail: func(ctx context.Context, r *Registry, account *models.LinkedAccount) (MailReader, error) {
		return newGoogleClient(ctx, r, account)
	},
	// Zoho linking is supported by the web layer, but no mail client binding
	// exists for it yet.
	models.AccountTypeZoho: func(ctx context.Context, r *Registry, account *models.LinkedAccount) (MailReader, error) {
		return nil, fmt.Errorf("zoho mail client not implemented: %w", ErrAuthentication)
	},
}

var storageConstructors = map[models.AccountType]storageConstructor{
	models.AccountTypeGoogleDrive: func(ctx context.Context, r *Registry, account *models.LinkedAccount) (StorageWriter, error) {
		return newGoogleClient(ctx, r, account)
	},
}

// MailReader constructs a mail client bound to the account's credential.
func (r *Registry) MailReader(ctx context.Context, account *models.LinkedAccount) (MailReader, error) {
	build, ok := mailConstructors[account.AccountType]
	if !ok {
		return nil, fmt.Errorf("account %s is not a mail account (type %s): %w",
			account.ID, account.AccountType, ErrAuthentication)
	}
	return build(ctx, r, account)
}

// MailReaderByID resolves the account in the credential store first.
func (r *Registry) MailReaderByID(ctx context.Context, accountID string) (MailReader, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("unknown mail account %s: %w", accountID, ErrAuthentication)
	}
	return r.MailReader(ctx, account)
}

// StorageWriterByID resolves the account in the credential store and
// constructs a storage client for it.
func (r *Registry) StorageWriterByID(ctx context.Context, accountID string) (StorageWriter, error) {
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("unknown storage account %s: %w", accountID, ErrAuthentication)
	}
	build, ok := storageConstructors[account.AccountType]
	if !ok {
		return nil, fmt.Errorf("account %s is not a storage account (type %s): %w",
			account.ID, account.AccountType, ErrAuthentication)
	}
	return build(ctx, r, account)
}
