package mimetree

import (
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Envelope holds the decoded top-level headers of a message
type Envelope struct {
	MessageID  string
	InReplyTo  string
	References []string
	Subject    string
	Sender     string
	SenderName string
	Recipients []string
	CC         []string
	Date       time.Time
	RawHeaders string
}

// Envelope extracts the addressing headers of the part
func (p *Part) Envelope() Envelope {
	header := mail.Header{Header: p.Header}
	env := Envelope{}

	// Message-ID
	env.MessageID = strings.TrimSpace(header.Get("Message-Id"))

	// In-Reply-To and References (for threading)
	env.InReplyTo = strings.TrimSpace(header.Get("In-Reply-To"))
	if references := header.Get("References"); references != "" {
		env.References = parseMessageIDList(references)
	}

	// Subject - decode MIME words
	env.Subject = DecodeHeader(header.Get("Subject"))

	// From
	if fromAddrs, err := header.AddressList("From"); err == nil && len(fromAddrs) > 0 {
		env.Sender = fromAddrs[0].Address
		env.SenderName = fromAddrs[0].Name
	}

	// To
	if toAddrs, err := header.AddressList("To"); err == nil {
		for _, addr := range toAddrs {
			env.Recipients = append(env.Recipients, addr.Address)
		}
	}

	// CC
	if ccAddrs, err := header.AddressList("Cc"); err == nil {
		for _, addr := range ccAddrs {
			env.CC = append(env.CC, addr.Address)
		}
	}

	// Date stays zero when missing or unparseable
	if date, err := header.Date(); err == nil {
		env.Date = date
	}

	env.RawHeaders = p.RawHeaders()

	return env
}

// RawHeaders returns the header block as text
func (p *Part) RawHeaders() string {
	var sb strings.Builder
	fields := p.Header.Fields()
	for fields.Next() {
		sb.WriteString(fields.Key())
		sb.WriteString(": ")
		sb.WriteString(fields.Value())
		sb.WriteString("\n")
	}
	return sb.String()
}

// DecodeHeader decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func DecodeHeader(s string) string {
	dec := new(mime.WordDecoder)
	dec.CharsetReader = charset.Reader
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		// If decoding fails, return original string
		return s
	}
	return decoded
}

// parseMessageIDList parses a space-separated list of Message-IDs
// Example: "<id1@example.com> <id2@example.com>" -> ["<id1@example.com>", "<id2@example.com>"]
func parseMessageIDList(s string) []string {
	var ids []string
	for _, part := range strings.Fields(s) {
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}
