package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/tidycrm/mailsync/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// CreateAccount creates a new mail account
func (db *DB) CreateAccount(ctx context.Context, account *models.MailAccount) error {
	query := `
		INSERT INTO mail_accounts (owner_id, display_name, email,
			imap_host, imap_port, imap_security, imap_username, imap_password,
			smtp_host, smtp_port, smtp_security, smtp_username, smtp_password,
			is_active, is_primary, sync_minutes, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		account.OwnerID,
		account.DisplayName,
		account.Email,
		account.IMAPHost,
		account.IMAPPort,
		account.IMAPSecurity,
		account.IMAPUsername,
		account.IMAPPassword,
		account.SMTPHost,
		account.SMTPPort,
		account.SMTPSecurity,
		account.SMTPUsername,
		account.SMTPPassword,
		account.IsActive,
		account.IsPrimary,
		account.SyncMinutes,
		account.LastSyncedAt,
		now,
		now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	account.ID = id
	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.MailAccount, error) {
	var account models.MailAccount
	query := `SELECT * FROM mail_accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetAccountsByOwner returns all accounts belonging to a CRM user
func (db *DB) GetAccountsByOwner(ctx context.Context, ownerID int64) ([]*models.MailAccount, error) {
	var accounts []*models.MailAccount
	query := `SELECT * FROM mail_accounts WHERE owner_id = ? ORDER BY is_primary DESC, created_at DESC`
	err := db.SelectContext(ctx, &accounts, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// GetAllActiveAccounts returns all active accounts
func (db *DB) GetAllActiveAccounts(ctx context.Context) ([]*models.MailAccount, error) {
	var accounts []*models.MailAccount
	query := `SELECT * FROM mail_accounts WHERE is_active = true`
	err := db.SelectContext(ctx, &accounts, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount persists the mutable fields of an account
func (db *DB) UpdateAccount(ctx context.Context, account *models.MailAccount) error {
	query := `
		UPDATE mail_accounts SET display_name = ?, email = ?,
			imap_host = ?, imap_port = ?, imap_security = ?, imap_username = ?, imap_password = ?,
			smtp_host = ?, smtp_port = ?, smtp_security = ?, smtp_username = ?, smtp_password = ?,
			is_active = ?, is_primary = ?, sync_minutes = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		account.DisplayName,
		account.Email,
		account.IMAPHost,
		account.IMAPPort,
		account.IMAPSecurity,
		account.IMAPUsername,
		account.IMAPPassword,
		account.SMTPHost,
		account.SMTPPort,
		account.SMTPSecurity,
		account.SMTPUsername,
		account.SMTPPassword,
		account.IsActive,
		account.IsPrimary,
		account.SyncMinutes,
		now,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	account.UpdatedAt = now
	return nil
}

// ClearPrimaryAccount unsets the primary flag on every account of an owner.
// Called before marking another account primary so at most one remains.
func (db *DB) ClearPrimaryAccount(ctx context.Context, ownerID int64) error {
	query := `UPDATE mail_accounts SET is_primary = false, updated_at = ? WHERE owner_id = ?`
	_, err := db.ExecContext(ctx, query, time.Now(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to clear primary flag: %w", err)
	}
	return nil
}

// UpdateAccountLastSynced records a successful sync timestamp
func (db *DB) UpdateAccountLastSynced(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE mail_accounts SET last_synced_at = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, at, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last synced: %w", err)
	}
	return nil
}

// SetAccountActive sets the active status of an account
func (db *DB) SetAccountActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE mail_accounts SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set account active: %w", err)
	}
	return nil
}

// DeleteAccount deletes an account; its emails and their attachments cascade
func (db *DB) DeleteAccount(ctx context.Context, id int64) error {
	query := `DELETE FROM mail_accounts WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
