package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    password_hash BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_login DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS linked_accounts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    account_type TEXT NOT NULL CHECK (account_type IN ('gmail', 'zoho', 'google_drive')),
    account_id TEXT NOT NULL,
    access_token TEXT,
    refresh_token TEXT,
    token_json TEXT,
    user_profile TEXT,
    expires_at DATETIME NOT NULL,
    last_update_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(account_type, account_id, user_id)
);

CREATE TABLE IF NOT EXISTS inbox_rules (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    account_id TEXT NOT NULL REFERENCES linked_accounts(id),
    name TEXT NOT NULL,
    email_from TEXT NOT NULL,
    email_subject TEXT NOT NULL,
    attachment_password TEXT NOT NULL DEFAULT '',
    destination_folder_id TEXT,
    destination_folder_name TEXT,
    destination_account_id TEXT NOT NULL REFERENCES linked_accounts(id),
    last_update_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS processed_emails (
    id TEXT PRIMARY KEY,
    email_id TEXT NOT NULL,
    account_id TEXT NOT NULL REFERENCES linked_accounts(id),
    processed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(account_id, email_id)
);

CREATE INDEX IF NOT EXISTS idx_accounts_user ON linked_accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_rules_account ON inbox_rules(account_id);
CREATE INDEX IF NOT EXISTS idx_rules_user ON inbox_rules(user_id);
CREATE INDEX IF NOT EXISTS idx_processed_account ON processed_emails(account_id);
`
