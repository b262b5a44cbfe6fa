package sealbox

import (
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// RawMessage is the parsed form of a raw RFC 5322 source, as returned
// by Inbox.GetRawEmail. It reflects the message as the sender built
// it, unlike Email, which carries the gateway's parsed and
// authenticated view.
type RawMessage struct {
	From        string
	To          []string
	Subject     string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []RawAttachment
}

// RawAttachment is one attachment part of a raw message.
type RawAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParseRawMessage parses raw RFC 5322 source into headers, bodies, and
// attachments.
//
// Example:
//
//	raw, err := inbox.GetRawEmail(ctx, email.ID)
//	if err != nil {
//	    return err
//	}
//	msg, err := sealbox.ParseRawMessage(raw)
func ParseRawMessage(raw string) (*RawMessage, error) {
	mr, err := mail.CreateReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer mr.Close()

	msg := &RawMessage{}

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				msg.Text = string(body)
			case strings.HasPrefix(contentType, "text/html"):
				msg.HTML = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			msg.Attachments = append(msg.Attachments, RawAttachment{
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		}
	}

	return msg, nil
}
