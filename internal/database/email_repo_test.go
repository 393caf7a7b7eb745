package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidycrm/mailsync/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func testAccountModel() *models.MailAccount {
	return &models.MailAccount{
		OwnerID:      1,
		Email:        "mario.rossi@acme.it",
		IMAPHost:     "imap.acme.it",
		IMAPPort:     993,
		IMAPSecurity: models.SecurityTLS,
		IMAPUsername: "mario.rossi@acme.it",
		IMAPPassword: "secret",
		SMTPHost:     "smtp.acme.it",
		SMTPPort:     587,
		SMTPSecurity: models.SecurityStartTLS,
		IsActive:     true,
		SyncMinutes:  15,
	}
}

func testAccount(t *testing.T, db *DB) *models.MailAccount {
	t.Helper()
	account := testAccountModel()
	require.NoError(t, db.CreateAccount(context.Background(), account))
	return account
}

func sampleEmail(accountID int64, messageID string) *models.Email {
	return &models.Email{
		AccountID: accountID,
		MessageID: messageID,
		ThreadID:  messageID,
		FromAddr:  "luigi.bianchi@example.it",
		FromName:  "Luigi Bianchi",
		ToAddrs:   "mario.rossi@acme.it",
		Subject:   "Quotation for Q4",
		BodyText:  "Please find the offer below.",
		Direction: models.DirectionInbound,
		SentAt:    time.Now(),
	}
}

// Storing the same (account, message id) twice leaves exactly one row and
// reports the duplicate distinctly so callers can skip it.
func TestCreateEmailDeduplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	account := testAccount(t, db)

	first := sampleEmail(account.ID, "dup@example.it")
	require.NoError(t, db.CreateEmail(ctx, first))
	require.NotZero(t, first.ID)

	second := sampleEmail(account.ID, "dup@example.it")
	second.Subject = "a different subject, same message"
	err := db.CreateEmail(ctx, second)
	require.ErrorIs(t, err, ErrAlreadyExists)

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM emails"))
	assert.Equal(t, 1, count)

	// The original row is untouched.
	stored, err := db.GetEmailByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quotation for Q4", stored.Subject)
}

func TestSameMessageIDAcrossAccounts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := testAccount(t, db)
	second := &models.MailAccount{
		OwnerID: 2, Email: "anna.verdi@acme.it",
		IMAPHost: "imap.acme.it", IMAPPort: 993, IMAPSecurity: models.SecurityTLS,
		IMAPUsername: "anna.verdi@acme.it", IMAPPassword: "secret",
		SMTPHost: "smtp.acme.it", SMTPPort: 587, SMTPSecurity: models.SecurityStartTLS,
		IsActive: true, SyncMinutes: 15,
	}
	require.NoError(t, db.CreateAccount(ctx, second))

	require.NoError(t, db.CreateEmail(ctx, sampleEmail(first.ID, "shared@example.it")))
	require.NoError(t, db.CreateEmail(ctx, sampleEmail(second.ID, "shared@example.it")))
}

func TestEmailExists(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	account := testAccount(t, db)

	exists, err := db.EmailExists(ctx, account.ID, "missing@example.it")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.CreateEmail(ctx, sampleEmail(account.ID, "present@example.it")))
	exists, err = db.EmailExists(ctx, account.ID, "present@example.it")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListEmailsFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	account := testAccount(t, db)

	inbound := sampleEmail(account.ID, "in@example.it")
	require.NoError(t, db.CreateEmail(ctx, inbound))

	outbound := sampleEmail(account.ID, "out@example.it")
	outbound.Direction = models.DirectionOutbound
	outbound.IsRead = true
	outbound.Subject = "Re: Quotation for Q4"
	require.NoError(t, db.CreateEmail(ctx, outbound))

	byDirection, err := db.ListEmails(ctx, EmailFilter{AccountID: account.ID, Direction: models.DirectionInbound})
	require.NoError(t, err)
	require.Len(t, byDirection, 1)
	assert.Equal(t, "in@example.it", byDirection[0].MessageID)

	unread := false
	byRead, err := db.ListEmails(ctx, EmailFilter{AccountID: account.ID, IsRead: &unread})
	require.NoError(t, err)
	require.Len(t, byRead, 1)
	assert.Equal(t, "in@example.it", byRead[0].MessageID)

	bySearch, err := db.ListEmails(ctx, EmailFilter{Search: "offer"})
	require.NoError(t, err)
	assert.Len(t, bySearch, 2)

	paged, err := db.ListEmails(ctx, EmailFilter{AccountID: account.ID, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestDeleteAccountCascadesEmails(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	account := testAccount(t, db)

	email := sampleEmail(account.ID, "cascade@example.it")
	require.NoError(t, db.CreateEmail(ctx, email))
	require.NoError(t, db.CreateAttachment(ctx, &models.Attachment{
		EmailID: email.ID, Filename: "offer.pdf", ContentType: "application/pdf",
		Size: 4, Content: []byte("%PDF"),
	}))

	require.NoError(t, db.DeleteAccount(ctx, account.ID))

	var emails, attachments int
	require.NoError(t, db.Get(&emails, "SELECT COUNT(*) FROM emails"))
	require.NoError(t, db.Get(&attachments, "SELECT COUNT(*) FROM attachments"))
	assert.Zero(t, emails)
	assert.Zero(t, attachments)
}
