package smtpout

import (
	"bytes"
	"io"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeRoundTrip(t *testing.T) {
	msg := &Message{
		To:      []string{"alice@example.com"},
		Cc:      []string{"bob@example.com"},
		Bcc:     []string{"carol@example.com"},
		Subject: "Quarterly review",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
		Attachments: []OutgoingAttachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-fake")},
		},
	}

	raw, msgID, err := compose("Sender Name", "sender@corp.com", msg)
	require.NoError(t, err)
	require.NotEmpty(t, msgID)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Quarterly review", subject)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "sender@corp.com", from[0].Address)

	// Bcc must not leak into headers.
	bcc, _ := mr.Header.AddressList("Bcc")
	assert.Empty(t, bcc)

	var gotText, gotHTML, gotAttachment string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, _ := io.ReadAll(part.Body)
			if ct == "text/plain" {
				gotText = string(body)
			}
			if ct == "text/html" {
				gotHTML = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			gotAttachment = filename
		}
	}

	assert.Equal(t, "plain body", gotText)
	assert.Equal(t, "<p>html body</p>", gotHTML)
	assert.Equal(t, "report.pdf", gotAttachment)
}

func TestComposeTextOnly(t *testing.T) {
	msg := &Message{
		To:      []string{"x@example.com"},
		Subject: "hi",
		Text:    "just text",
	}

	raw, msgID, err := compose("", "me@corp.com", msg)
	require.NoError(t, err)
	assert.NotEmpty(t, msgID)
	assert.NotEmpty(t, raw)
}

func TestRecipientsIncludeBcc(t *testing.T) {
	msg := &Message{
		To:  []string{"a@x.com"},
		Cc:  []string{"b@x.com"},
		Bcc: []string{"c@x.com"},
	}
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, msg.Recipients())
}
