package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/tidycrm/mailsync/pkg/models"
)

// Address represents an email address
type Address struct {
	Name    string
	Address string
}

// RawAttachment is one attachment part of a fetched message
type RawAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RawMessage represents a fully fetched message from IMAP
type RawMessage struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Date        time.Time
	BodyText    string
	BodyHTML    string
	Attachments []RawAttachment
}

// ClientConfig configuration for an IMAP session
type ClientConfig struct {
	Host        string
	Addr        string // host:port
	Username    string
	Password    string
	Security    models.SecurityMode
	DialTimeout time.Duration
	PollTimeout time.Duration
}

// ConfigFromAccount builds a ClientConfig from an account's inbound
// connection parameters.
func ConfigFromAccount(account *models.MailAccount, dialTimeout, pollTimeout time.Duration) ClientConfig {
	return ClientConfig{
		Host:        account.IMAPHost,
		Addr:        account.IMAPAddr(),
		Username:    account.IMAPUsername,
		Password:    account.IMAPPassword,
		Security:    account.IMAPSecurity,
		DialTimeout: dialTimeout,
		PollTimeout: pollTimeout,
	}
}

// Client is a mutex-guarded IMAP session for a single mailbox
type Client struct {
	config    ClientConfig
	client    *client.Client
	logger    *slog.Logger
	mu        sync.Mutex
	connected bool
	stopCh    chan struct{}
	stopped   bool
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger.With("imap", cfg.Addr),
		stopCh: make(chan struct{}),
	}
}

// Connect dials and authenticates against the IMAP server, honoring the
// configured transport security mode.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	var imapClient *client.Client
	switch c.config.Security {
	case models.SecurityTLS:
		conn, err := tls.DialWithDialer(dialer, "tcp", c.config.Addr, &tls.Config{ServerName: c.config.Host})
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		imapClient, err = client.New(conn)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create IMAP client: %w", err)
		}
	default:
		conn, err := dialer.Dial("tcp", c.config.Addr)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		imapClient, err = client.New(conn)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create IMAP client: %w", err)
		}
		if c.config.Security == models.SecurityStartTLS {
			if err := imapClient.StartTLS(&tls.Config{ServerName: c.config.Host}); err != nil {
				imapClient.Logout()
				return fmt.Errorf("failed to upgrade to TLS: %w", err)
			}
		}
	}

	if err := imapClient.Login(c.config.Username, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Debug("connected to IMAP server")

	return nil
}

// SelectInbox selects the INBOX mailbox
func (c *Client) SelectInbox(ctx context.Context) (*imap.MailboxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	mbox, err := c.client.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return mbox, nil
}

// SearchUnseen returns the UIDs of unread messages in server order
func (c *Client) SearchUnseen(ctx context.Context) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return uids, nil
}

// FetchMessages fetches and parses full MIME content for the given UIDs.
// Messages that fail to parse are logged and skipped; the returned error
// only reflects the fetch itself.
func (c *Client) FetchMessages(ctx context.Context, uids []uint32) ([]*RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 20)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var parsed []*RawMessage
	for msg := range messages {
		raw, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		parsed = append(parsed, raw)
	}

	if err := <-done; err != nil {
		return parsed, fmt.Errorf("failed to fetch: %w", err)
	}

	return parsed, nil
}

// parseMessage parses an IMAP message into a RawMessage
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*RawMessage, error) {
	raw := &RawMessage{UID: msg.Uid}

	if msg.Envelope != nil {
		raw.Subject = msg.Envelope.Subject
		raw.Date = msg.Envelope.Date
		raw.MessageID = msg.Envelope.MessageId
		raw.InReplyTo = msg.Envelope.InReplyTo

		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			raw.From = Address{Name: from.PersonalName, Address: from.Address()}
		}
		raw.To = convertAddresses(msg.Envelope.To)
		raw.Cc = convertAddresses(msg.Envelope.Cc)
		raw.Bcc = convertAddresses(msg.Envelope.Bcc)
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return raw, nil
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		c.logger.Warn("failed to create mail reader", "uid", msg.Uid, "error", err)
		return raw, nil
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read part", "uid", msg.Uid, "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			if strings.HasPrefix(ct, "text/html") {
				raw.BodyHTML = string(body)
			} else if strings.HasPrefix(ct, "text/plain") {
				raw.BodyText = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ct, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				c.logger.Warn("failed to read attachment", "uid", msg.Uid, "error", err)
				continue
			}
			raw.Attachments = append(raw.Attachments, RawAttachment{
				Filename:    filename,
				ContentType: ct,
				Data:        data,
			})
		}
	}

	return raw, nil
}

func convertAddresses(addrs []*imap.Address) []Address {
	out := make([]Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Address{Name: a.PersonalName, Address: a.Address()})
	}
	return out
}

// MarkSeen marks a message as read on the server (adds \Seen flag)
func (c *Client) MarkSeen(ctx context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as seen: %w", err)
	}

	return nil
}

// Check verifies the account's inbound parameters with a full
// connect, login, select and disconnect cycle.
func Check(ctx context.Context, account *models.MailAccount, dialTimeout time.Duration, logger *slog.Logger) error {
	c := NewClient(ConfigFromAccount(account, dialTimeout, dialTimeout), logger)
	defer c.Stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	_, err := c.SelectInbox(ctx)
	return err
}

// Noop pings the server to verify the connection is still alive
func (c *Client) Noop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Noop()
}

// Stop tears down the session. Safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	imapClient := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	close(c.stopCh)

	if imapClient != nil {
		go func() {
			// Try logout with timeout, then force close
			done := make(chan struct{})
			go func() {
				imapClient.Logout()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				imapClient.Terminate()
			}
		}()
	}
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
