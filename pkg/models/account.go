package models

import (
	"fmt"
	"time"
)

// SecurityMode is the transport security used when dialing a mail server.
type SecurityMode string

const (
	SecurityTLS      SecurityMode = "tls"      // implicit TLS
	SecurityStartTLS SecurityMode = "starttls" // opportunistic upgrade
	SecurityNone     SecurityMode = "none"
)

// Valid reports whether the mode is one of the known values.
func (m SecurityMode) Valid() bool {
	switch m {
	case SecurityTLS, SecurityStartTLS, SecurityNone:
		return true
	}
	return false
}

// MailAccount represents a connected mailbox owned by a CRM user.
type MailAccount struct {
	ID           int64        `db:"id"`
	OwnerID      int64        `db:"owner_id"`
	DisplayName  string       `db:"display_name"`
	Email        string       `db:"email"`
	IMAPHost     string       `db:"imap_host"`
	IMAPPort     int          `db:"imap_port"`
	IMAPSecurity SecurityMode `db:"imap_security"`
	IMAPUsername string       `db:"imap_username"`
	IMAPPassword string       `db:"imap_password"`
	SMTPHost     string       `db:"smtp_host"`
	SMTPPort     int          `db:"smtp_port"`
	SMTPSecurity SecurityMode `db:"smtp_security"`
	SMTPUsername string       `db:"smtp_username"`
	SMTPPassword string       `db:"smtp_password"`
	IsActive     bool         `db:"is_active"`
	IsPrimary    bool         `db:"is_primary"`
	SyncMinutes  int          `db:"sync_minutes"`
	LastSyncedAt *time.Time   `db:"last_synced_at"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

// IMAPAddr returns the host:port of the inbound server.
func (a *MailAccount) IMAPAddr() string {
	return fmt.Sprintf("%s:%d", a.IMAPHost, a.IMAPPort)
}

// SMTPAddr returns the host:port of the outbound server.
func (a *MailAccount) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", a.SMTPHost, a.SMTPPort)
}
