package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidycrm/mailsync/internal/database"
	"github.com/tidycrm/mailsync/internal/parser"
	"github.com/tidycrm/mailsync/internal/resolve"
	"github.com/tidycrm/mailsync/internal/signature"
	"github.com/tidycrm/mailsync/pkg/models"
)

// Receiver runs the inbound pipeline for one account at a time: fetch
// unread messages, parse signatures, resolve CRM entities and persist
// normalized emails with their attachments.
type Receiver struct {
	db          *database.DB
	signatures  *signature.Parser
	companies   *resolve.CompanyMatcher
	contacts    *resolve.ContactMatcher
	dialTimeout time.Duration
	pollTimeout time.Duration
	logger      *slog.Logger
}

// ReceiverDeps dependencies for creating a Receiver
type ReceiverDeps struct {
	DB          *database.DB
	Signatures  *signature.Parser
	Companies   *resolve.CompanyMatcher
	Contacts    *resolve.ContactMatcher
	DialTimeout time.Duration
	PollTimeout time.Duration
	Logger      *slog.Logger
}

// NewReceiver creates a Receiver
func NewReceiver(deps ReceiverDeps) *Receiver {
	return &Receiver{
		db:          deps.DB,
		signatures:  deps.Signatures,
		companies:   deps.Companies,
		contacts:    deps.Contacts,
		dialTimeout: deps.DialTimeout,
		pollTimeout: deps.PollTimeout,
		logger:      deps.Logger.With("component", "receiver"),
	}
}

// FetchUnread opens a connection to the account's mailbox, processes all
// unread messages and returns how many were newly stored. Idempotent: the
// (account, message id) uniqueness makes re-runs and concurrent runs safe.
func (r *Receiver) FetchUnread(ctx context.Context, account *models.MailAccount) (int, error) {
	c := NewClient(ConfigFromAccount(account, r.dialTimeout, r.pollTimeout), r.logger)
	if err := c.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer c.Stop()

	return r.Drain(ctx, c, account)
}

// Drain processes all unread messages visible through an already-connected
// client. Shared between on-demand fetches and the long-lived listener.
func (r *Receiver) Drain(ctx context.Context, c *Client, account *models.MailAccount) (int, error) {
	if _, err := c.SelectInbox(ctx); err != nil {
		return 0, fmt.Errorf("select inbox: %w", err)
	}

	uids, err := c.SearchUnseen(ctx)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}
	if len(uids) == 0 {
		return 0, nil
	}

	messages, err := c.FetchMessages(ctx, uids)
	if err != nil && len(messages) == 0 {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	stored := 0
	for _, msg := range messages {
		ok, err := r.processMessage(ctx, c, account, msg)
		if err != nil {
			// A single bad message must not abort the rest of the batch.
			r.logger.Error("failed to process message",
				"account_id", account.ID, "uid", msg.UID, "message_id", msg.MessageID, "error", err)
			continue
		}
		if ok {
			stored++
		}
	}

	r.logger.Info("processed unread messages",
		"account_id", account.ID, "fetched", len(messages), "stored", stored)
	return stored, nil
}

// processMessage runs the per-message pipeline. Returns false when the
// message was already stored (dedup) and was only re-marked as seen.
func (r *Receiver) processMessage(ctx context.Context, c *Client, account *models.MailAccount, msg *RawMessage) (bool, error) {
	messageID := msg.MessageID
	if messageID == "" {
		// Some servers omit Message-ID; the UID still dedups per account.
		messageID = fmt.Sprintf("uid-%d@%s", msg.UID, account.Email)
	}

	exists, err := r.db.EmailExists(ctx, account.ID, messageID)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		r.markSeen(ctx, c, account, msg.UID)
		return false, nil
	}

	bodyText := msg.BodyText
	if bodyText == "" && msg.BodyHTML != "" {
		if converted, err := parser.HTMLToText(msg.BodyHTML); err == nil {
			bodyText = converted
		}
	}

	profile := r.signatures.Parse(bodyText, msg.BodyHTML)

	companyID := r.companies.Match(ctx, domainOf(msg.From.Address), msg.From.Address)

	var contactID *int64
	if id, err := r.contacts.Resolve(ctx, msg.From.Address, msg.From.Name, profile); err != nil {
		// Contact resolution must never block mail storage.
		r.logger.Warn("contact resolution failed",
			"account_id", account.ID, "message_id", messageID, "error", err)
	} else {
		contactID = &id
	}

	extracted := ""
	if !profile.Empty() {
		if data, err := json.Marshal(profile); err == nil {
			extracted = string(data)
		}
	}

	sentAt := msg.Date
	if sentAt.IsZero() {
		sentAt = time.Now()
	}

	email := &models.Email{
		AccountID:      account.ID,
		MessageID:      messageID,
		ThreadID:       threadID(msg, messageID),
		FromAddr:       msg.From.Address,
		FromName:       msg.From.Name,
		ToAddrs:        joinAddresses(msg.To),
		CcAddrs:        joinAddresses(msg.Cc),
		BccAddrs:       joinAddresses(msg.Bcc),
		Subject:        msg.Subject,
		BodyText:       bodyText,
		BodyHTML:       msg.BodyHTML,
		HasAttachments: len(msg.Attachments) > 0,
		Direction:      models.DirectionInbound,
		SentAt:         sentAt,
		ContactID:      contactID,
		CompanyID:      companyID,
		ExtractedData:  extracted,
	}

	if err := r.db.CreateEmail(ctx, email); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			// A concurrent fetch stored it first; that counts as done.
			r.markSeen(ctx, c, account, msg.UID)
			return false, nil
		}
		return false, fmt.Errorf("store email: %w", err)
	}

	for _, att := range msg.Attachments {
		record := &models.Attachment{
			EmailID:     email.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        int64(len(att.Data)),
			Content:     att.Data,
		}
		if err := r.db.CreateAttachment(ctx, record); err != nil {
			r.logger.Error("failed to store attachment",
				"email_id", email.ID, "filename", att.Filename, "error", err)
		}
	}

	r.markSeen(ctx, c, account, msg.UID)
	return true, nil
}

func (r *Receiver) markSeen(ctx context.Context, c *Client, account *models.MailAccount, uid uint32) {
	if err := c.MarkSeen(ctx, uid); err != nil {
		r.logger.Warn("failed to mark message seen",
			"account_id", account.ID, "uid", uid, "error", err)
	}
}

// threadID groups a message into a conversation: replies share the root
// message's id, fresh messages start their own thread.
func threadID(msg *RawMessage, messageID string) string {
	if msg.InReplyTo != "" {
		return msg.InReplyTo
	}
	return messageID
}

func joinAddresses(addrs []Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Address)
	}
	return strings.Join(parts, ", ")
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i+1 < len(addr) {
		return strings.ToLower(addr[i+1:])
	}
	return ""
}
