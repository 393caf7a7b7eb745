package models

import "time"

// Direction of an email relative to the CRM user.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Email represents a normalized message stored for a mail account.
//
// (AccountID, MessageID) is unique; a message is never stored twice.
type Email struct {
	ID             int64     `db:"id"`
	AccountID      int64     `db:"account_id"`
	MessageID      string    `db:"message_id"` // protocol Message-ID header
	ThreadID       string    `db:"thread_id"`
	FromAddr       string    `db:"from_addr"`
	FromName       string    `db:"from_name"`
	ToAddrs        string    `db:"to_addrs"` // comma-separated address lists
	CcAddrs        string    `db:"cc_addrs"`
	BccAddrs       string    `db:"bcc_addrs"`
	Subject        string    `db:"subject"`
	BodyText       string    `db:"body_text"`
	BodyHTML       string    `db:"body_html"`
	IsRead         bool      `db:"is_read"`
	IsFlagged      bool      `db:"is_flagged"`
	HasAttachments bool      `db:"has_attachments"`
	Direction      Direction `db:"direction"`
	SentAt         time.Time `db:"sent_at"`
	ContactID      *int64    `db:"contact_id"`
	CompanyID      *int64    `db:"company_id"`
	DealID         *int64    `db:"deal_id"`
	ExtractedData  string    `db:"extracted_data"` // JSON archive of the parsed signature
	CreatedAt      time.Time `db:"created_at"`
}

// Attachment belongs to exactly one Email.
type Attachment struct {
	ID          int64     `db:"id"`
	EmailID     int64     `db:"email_id"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	Content     []byte    `db:"content"`
	CreatedAt   time.Time `db:"created_at"`
}
