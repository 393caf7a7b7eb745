package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/internal/smtpout"
	"github.com/tidycrm/mailsync/pkg/models"
)

// mailSubmitter sends a composed message through an account.
type mailSubmitter interface {
	Send(ctx context.Context, account *models.MailAccount, msg *smtpout.Message, links smtpout.EntityLinks) (*models.Email, error)
}

// SendRequest is the facade input for sending an email.
type SendRequest struct {
	AccountID   int64
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []smtpout.OutgoingAttachment
	Links       smtpout.EntityLinks
}

// EmailService exposes the stored mail and the user-triggered sync and
// send operations.
type EmailService struct {
	db     *database.DB
	queue  syncScheduler
	sender mailSubmitter
	logger *slog.Logger
}

// NewEmailService creates an EmailService
func NewEmailService(db *database.DB, queue syncScheduler, sender mailSubmitter, logger *slog.Logger) *EmailService {
	return &EmailService{
		db:     db,
		queue:  queue,
		sender: sender,
		logger: logger.With("component", "email_service"),
	}
}

// List returns emails matching the filter, newest first.
func (s *EmailService) List(ctx context.Context, f database.EmailFilter) ([]*models.Email, error) {
	emails, err := s.db.ListEmails(ctx, f)
	if err != nil {
		return nil, internalErr("failed to list emails", err)
	}
	return emails, nil
}

// Get returns one email with its attachments.
func (s *EmailService) Get(ctx context.Context, id int64) (*models.Email, []*models.Attachment, error) {
	email, err := s.db.GetEmailByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, notFoundErr("email")
	}
	if err != nil {
		return nil, nil, internalErr("failed to load email", err)
	}

	var attachments []*models.Attachment
	if email.HasAttachments {
		attachments, err = s.db.GetAttachmentsByEmail(ctx, id)
		if err != nil {
			return nil, nil, internalErr("failed to load attachments", err)
		}
	}
	return email, attachments, nil
}

// MarkRead sets the read state of an email.
func (s *EmailService) MarkRead(ctx context.Context, id int64, read bool) error {
	err := s.db.MarkEmailRead(ctx, id, read)
	if errors.Is(err, database.ErrNotFound) {
		return notFoundErr("email")
	}
	if err != nil {
		return internalErr("failed to update read state", err)
	}
	return nil
}

// MarkFlagged sets the flagged state of an email.
func (s *EmailService) MarkFlagged(ctx context.Context, id int64, flagged bool) error {
	err := s.db.MarkEmailFlagged(ctx, id, flagged)
	if errors.Is(err, database.ErrNotFound) {
		return notFoundErr("email")
	}
	if err != nil {
		return internalErr("failed to update flagged state", err)
	}
	return nil
}

// SyncNow enqueues a one-shot sync for the account and returns the job id.
func (s *EmailService) SyncNow(ctx context.Context, accountID int64) (string, error) {
	account, err := s.db.GetAccountByID(ctx, accountID)
	if errors.Is(err, database.ErrNotFound) {
		return "", notFoundErr("account")
	}
	if err != nil {
		return "", internalErr("failed to load account", err)
	}
	if !account.IsActive {
		return "", validationErr("account", "is not active")
	}

	jobID := s.queue.Enqueue(accountID)
	s.logger.Info("sync requested", "account_id", accountID, "job_id", jobID)
	return jobID, nil
}

// SyncAll enqueues a sync for every active account and returns how many
// were triggered.
func (s *EmailService) SyncAll(ctx context.Context) (int, error) {
	accounts, err := s.db.GetAllActiveAccounts(ctx)
	if err != nil {
		return 0, internalErr("failed to list active accounts", err)
	}
	for _, account := range accounts {
		s.queue.Enqueue(account.ID)
	}
	s.logger.Info("sync requested for all accounts", "count", len(accounts))
	return len(accounts), nil
}

// Send submits an email through the account's outbound server and returns
// the stored record. Transport failures surface immediately; no retry.
func (s *EmailService) Send(ctx context.Context, req SendRequest) (*models.Email, error) {
	if len(req.To) == 0 {
		return nil, validationErr("to", "at least one recipient is required")
	}
	for _, addr := range append(append(append([]string{}, req.To...), req.Cc...), req.Bcc...) {
		if !strings.Contains(addr, "@") {
			return nil, validationErr("recipient", "address "+addr+" is not valid")
		}
	}
	if req.Text == "" && req.HTML == "" {
		return nil, validationErr("body", "text or html body is required")
	}

	account, err := s.db.GetAccountByID(ctx, req.AccountID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notFoundErr("account")
	}
	if err != nil {
		return nil, internalErr("failed to load account", err)
	}

	msg := &smtpout.Message{
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Attachments: req.Attachments,
	}
	email, err := s.sender.Send(ctx, account, msg, req.Links)
	if err != nil {
		return nil, classifySendError(err)
	}
	return email, nil
}

// DownloadAttachment returns the attachment with its content.
func (s *EmailService) DownloadAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	att, err := s.db.GetAttachmentByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, notFoundErr("attachment")
	}
	if err != nil {
		return nil, internalErr("failed to load attachment", err)
	}
	return att, nil
}

func classifySendError(err error) error {
	var se *smtpout.SendError
	if !errors.As(err, &se) {
		return internalErr("send failed", err)
	}
	switch se.Stage {
	case "account", "compose":
		return &Error{Kind: KindValidation, Message: se.Error(), Err: se}
	case "connect", "auth", "submit":
		return transportErr(se.Error(), se)
	default:
		return internalErr(se.Error(), se)
	}
}
