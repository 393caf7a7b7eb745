package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidycrm/mailsync/pkg/models"
)

// CreateEmail stores a normalized email. Duplicate (account_id, message_id)
// pairs are ignored by the insert and reported as ErrAlreadyExists, which
// callers treat as "already processed".
func (db *DB) CreateEmail(ctx context.Context, email *models.Email) error {
	query := `
		INSERT OR IGNORE INTO emails (account_id, message_id, thread_id,
			from_addr, from_name, to_addrs, cc_addrs, bcc_addrs, subject,
			body_text, body_html, is_read, is_flagged, has_attachments,
			direction, sent_at, contact_id, company_id, deal_id,
			extracted_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		email.AccountID,
		email.MessageID,
		email.ThreadID,
		email.FromAddr,
		email.FromName,
		email.ToAddrs,
		email.CcAddrs,
		email.BccAddrs,
		email.Subject,
		email.BodyText,
		email.BodyHTML,
		email.IsRead,
		email.IsFlagged,
		email.HasAttachments,
		email.Direction,
		email.SentAt,
		email.ContactID,
		email.CompanyID,
		email.DealID,
		email.ExtractedData,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	email.ID = id
	email.CreatedAt = now
	return nil
}

// GetEmailByID returns an email by ID
func (db *DB) GetEmailByID(ctx context.Context, id int64) (*models.Email, error) {
	var email models.Email
	query := `SELECT * FROM emails WHERE id = ?`
	err := db.GetContext(ctx, &email, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return &email, nil
}

// EmailExists reports whether a message with the given protocol id is
// already stored for the account.
func (db *DB) EmailExists(ctx context.Context, accountID int64, messageID string) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM emails WHERE account_id = ? AND message_id = ?`
	if err := db.GetContext(ctx, &count, query, accountID, messageID); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return count > 0, nil
}

// EmailFilter narrows ListEmails results. Zero values mean "no filter".
type EmailFilter struct {
	AccountID int64
	ContactID int64
	CompanyID int64
	DealID    int64
	Direction models.Direction
	IsRead    *bool
	Search    string // free-text over subject and bodies
	Limit     int
	Offset    int
}

// ListEmails returns emails matching the filter, newest first.
func (db *DB) ListEmails(ctx context.Context, f EmailFilter) ([]*models.Email, error) {
	var conds []string
	var args []interface{}

	if f.AccountID != 0 {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.ContactID != 0 {
		conds = append(conds, "contact_id = ?")
		args = append(args, f.ContactID)
	}
	if f.CompanyID != 0 {
		conds = append(conds, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.DealID != 0 {
		conds = append(conds, "deal_id = ?")
		args = append(args, f.DealID)
	}
	if f.Direction != "" {
		conds = append(conds, "direction = ?")
		args = append(args, f.Direction)
	}
	if f.IsRead != nil {
		conds = append(conds, "is_read = ?")
		args = append(args, *f.IsRead)
	}
	if f.Search != "" {
		conds = append(conds, "(subject LIKE ? OR body_text LIKE ? OR from_addr LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT * FROM emails`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sent_at DESC, id DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	var emails []*models.Email
	if err := db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// MarkEmailRead flips the read flag of a stored email
func (db *DB) MarkEmailRead(ctx context.Context, id int64, read bool) error {
	query := `UPDATE emails SET is_read = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, read, id)
	if err != nil {
		return fmt.Errorf("failed to mark email read: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailFlagged flips the flagged flag of a stored email
func (db *DB) MarkEmailFlagged(ctx context.Context, id int64, flagged bool) error {
	query := `UPDATE emails SET is_flagged = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, flagged, id)
	if err != nil {
		return fmt.Errorf("failed to mark email flagged: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAttachment stores an attachment under its parent email
func (db *DB) CreateAttachment(ctx context.Context, att *models.Attachment) error {
	query := `
		INSERT INTO attachments (email_id, filename, content_type, size, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		att.EmailID,
		att.Filename,
		att.ContentType,
		att.Size,
		att.Content,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	att.ID = id
	att.CreatedAt = now
	return nil
}

// GetAttachmentByID returns an attachment with its content
func (db *DB) GetAttachmentByID(ctx context.Context, id int64) (*models.Attachment, error) {
	var att models.Attachment
	query := `SELECT * FROM attachments WHERE id = ?`
	err := db.GetContext(ctx, &att, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &att, nil
}

// GetAttachmentsByEmail returns all attachments of an email
func (db *DB) GetAttachmentsByEmail(ctx context.Context, emailID int64) ([]*models.Attachment, error) {
	var atts []*models.Attachment
	query := `SELECT * FROM attachments WHERE email_id = ? ORDER BY id`
	if err := db.SelectContext(ctx, &atts, query, emailID); err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	return atts, nil
}
