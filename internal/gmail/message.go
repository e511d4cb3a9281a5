package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxtriage/internal/triage"
)

// Placeholders for messages missing the header.
const (
	UnknownSender = "Unknown"
	NoSubject     = "No Subject"
)

// HeaderValue extracts a header value from a Gmail message
func HeaderValue(m *gmail.Message, header string) string {
	mpart := m.Payload
	if mpart == nil {
		return ""
	}
	for _, mph := range mpart.Headers {
		if strings.EqualFold(mph.Name, header) {
			return mph.Value
		}
	}
	return ""
}

// ToEmailRecord converts a full-format message into an email record owned
// by userEmail.
func ToEmailRecord(m *gmail.Message, userEmail string) triage.EmailRecord {
	sender := HeaderValue(m, "From")
	if sender == "" {
		sender = UnknownSender
	}
	subject := HeaderValue(m, "Subject")
	if subject == "" {
		subject = NoSubject
	}

	received := time.Now()
	if m.InternalDate > 0 {
		received = time.UnixMilli(m.InternalDate)
	}

	return triage.EmailRecord{
		ID:         m.Id,
		UserEmail:  userEmail,
		Sender:     sender,
		Subject:    subject,
		Body:       MessageText(m.Payload),
		ThreadID:   m.ThreadId,
		ReceivedAt: received,
	}
}

// MessageText returns the readable text of a message payload. The
// text/plain parts are used when there are any; otherwise text/html parts
// are converted to text. Attachments are ignored and whitespace runs
// collapse to one space.
func MessageText(payload *gmail.MessagePart) string {
	var plain, html []string
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Filename != "" || part.Body == nil || part.Body.Data == "" {
			return
		}
		switch part.MimeType {
		case "text/plain", "":
			if text, ok := decodeBody(part.Body.Data); ok {
				plain = append(plain, text)
			}
		case "text/html":
			if markup, ok := decodeBody(part.Body.Data); ok {
				text, err := html2text.FromString(markup, html2text.Options{OmitLinks: true, TextOnly: true})
				if err == nil {
					html = append(html, text)
				}
			}
		}
	})

	parts := plain
	if len(parts) == 0 {
		parts = html
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// walkParts calls fn for part and all its descendants, depth first.
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}
	fn(part)
	for _, sub := range part.Parts {
		walkParts(sub, fn)
	}
}

// decodeBody decodes base64url body data with or without padding.
func decodeBody(data string) (string, bool) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		decoded, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return "", false
		}
	}
	return strings.ToValidUTF8(string(decoded), ""), true
}
