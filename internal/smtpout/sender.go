// Package smtpout submits composed messages to the account's mail
// submission server and records them with the same normalization as
// inbound mail.
package smtpout

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/pkg/models"
)

// SendError reports which stage of a send failed. The wrapped transport
// error is preserved for the caller; credentials never appear in it.
type SendError struct {
	Stage string // "account", "compose", "connect", "auth", "submit", "store"
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed at %s: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// EntityLinks are the CRM records the caller already knows the message
// relates to. No resolver runs for outbound mail.
type EntityLinks struct {
	ContactID *int64
	CompanyID *int64
	DealID    *int64
}

// Sender submits messages over SMTP and persists the outbound email
type Sender struct {
	db          *database.DB
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewSender creates a Sender
func NewSender(db *database.DB, dialTimeout time.Duration, logger *slog.Logger) *Sender {
	return &Sender{
		db:          db,
		dialTimeout: dialTimeout,
		logger:      logger.With("component", "sender"),
	}
}

// Send composes and submits the message through the account's outbound
// server, then persists an Email row (direction outbound, already read)
// with its attachments. On submission failure nothing is written.
func (s *Sender) Send(ctx context.Context, account *models.MailAccount, msg *Message, links EntityLinks) (*models.Email, error) {
	if !account.IsActive {
		return nil, &SendError{Stage: "account", Err: fmt.Errorf("account %d is not active", account.ID)}
	}
	if len(msg.To) == 0 {
		return nil, &SendError{Stage: "compose", Err: fmt.Errorf("no recipients")}
	}

	raw, msgID, err := compose(account.DisplayName, account.Email, msg)
	if err != nil {
		return nil, &SendError{Stage: "compose", Err: err}
	}

	if err := s.submit(account, raw, msg.Recipients()); err != nil {
		return nil, err
	}

	s.logger.Info("message submitted",
		"account_id", account.ID, "message_id", msgID, "recipients", len(msg.Recipients()))

	email := &models.Email{
		AccountID:      account.ID,
		MessageID:      msgID,
		ThreadID:       msgID,
		FromAddr:       account.Email,
		FromName:       account.DisplayName,
		ToAddrs:        strings.Join(msg.To, ", "),
		CcAddrs:        strings.Join(msg.Cc, ", "),
		BccAddrs:       strings.Join(msg.Bcc, ", "),
		Subject:        msg.Subject,
		BodyText:       msg.Text,
		BodyHTML:       msg.HTML,
		IsRead:         true,
		HasAttachments: len(msg.Attachments) > 0,
		Direction:      models.DirectionOutbound,
		SentAt:         time.Now(),
		ContactID:      links.ContactID,
		CompanyID:      links.CompanyID,
		DealID:         links.DealID,
	}
	if err := s.db.CreateEmail(ctx, email); err != nil {
		// The message left the building; losing the record is still an error.
		return nil, &SendError{Stage: "store", Err: err}
	}

	for _, att := range msg.Attachments {
		record := &models.Attachment{
			EmailID:     email.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        int64(len(att.Data)),
			Content:     att.Data,
		}
		if err := s.db.CreateAttachment(ctx, record); err != nil {
			s.logger.Error("failed to store outbound attachment",
				"email_id", email.ID, "filename", att.Filename, "error", err)
		}
	}

	return email, nil
}

// submit opens a short-lived connection to the submission server, honoring
// the account's transport security mode, and hands over the message.
func (s *Sender) submit(account *models.MailAccount, raw []byte, recipients []string) error {
	c, err := s.dial(account)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SendMail(account.Email, recipients, bytes.NewReader(raw)); err != nil {
		return &SendError{Stage: "submit", Err: err}
	}

	return c.Quit()
}

// Check verifies the account's outbound parameters by connecting and
// authenticating, then disconnecting. Nothing is sent.
func (s *Sender) Check(account *models.MailAccount) error {
	c, err := s.dial(account)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (s *Sender) dial(account *models.MailAccount) (*smtp.Client, error) {
	timeout := s.dialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var c *smtp.Client
	switch account.SMTPSecurity {
	case models.SecurityTLS:
		conn, err := tls.DialWithDialer(dialer, "tcp", account.SMTPAddr(), &tls.Config{ServerName: account.SMTPHost})
		if err != nil {
			return nil, &SendError{Stage: "connect", Err: err}
		}
		c = smtp.NewClient(conn)
	default:
		conn, err := dialer.Dial("tcp", account.SMTPAddr())
		if err != nil {
			return nil, &SendError{Stage: "connect", Err: err}
		}
		if account.SMTPSecurity == models.SecurityStartTLS {
			c, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: account.SMTPHost})
			if err != nil {
				conn.Close()
				return nil, &SendError{Stage: "connect", Err: err}
			}
		} else {
			c = smtp.NewClient(conn)
		}
	}

	if account.SMTPUsername != "" {
		auth := sasl.NewPlainClient("", account.SMTPUsername, account.SMTPPassword)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, &SendError{Stage: "auth", Err: err}
		}
	}

	return c, nil
}
