package smtpout

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-message/mail"
)

// OutgoingAttachment is a file to attach to an outbound message
type OutgoingAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a composed outbound email before submission
type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []OutgoingAttachment
}

// Recipients returns every envelope recipient: to, cc and bcc
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// compose renders the message as a MIME document and returns the raw bytes
// together with the generated Message-ID. Bcc recipients stay out of the
// headers; they only appear in the envelope.
func compose(fromName, fromAddr string, msg *Message) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: fromAddr}})
	h.SetAddressList("To", toAddressList(msg.To))
	if len(msg.Cc) > 0 {
		h.SetAddressList("Cc", toAddressList(msg.Cc))
	}
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}
	msgID, err := h.MessageID()
	if err != nil {
		return nil, "", fmt.Errorf("failed to read message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create inline part: %w", err)
	}
	if msg.Text != "" || msg.HTML == "" {
		var th mail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		part, err := iw.CreatePart(th)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create text part: %w", err)
		}
		if _, err := part.Write([]byte(msg.Text)); err != nil {
			return nil, "", fmt.Errorf("failed to write text part: %w", err)
		}
		part.Close()
	}
	if msg.HTML != "" {
		var th mail.InlineHeader
		th.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		part, err := iw.CreatePart(th)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create html part: %w", err)
		}
		if _, err := part.Write([]byte(msg.HTML)); err != nil {
			return nil, "", fmt.Errorf("failed to write html part: %w", err)
		}
		part.Close()
	}
	iw.Close()

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		ah.SetFilename(att.Filename)
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.SetContentType(ct, nil)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}

	return buf.Bytes(), msgID, nil
}

func toAddressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, &mail.Address{Address: a})
	}
	return out
}
