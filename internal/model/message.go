package model

import (
	"strings"
	"time"
)

// MessageSummary is the lightweight list-row representation of a message.
type MessageSummary struct {
	// ID is the provider's message identifier.
	ID string `json:"id"`

	// From is the sender rendered as "name <address>".
	From string `json:"from"`

	// Subject is the message subject; empty when the message has none.
	Subject string `json:"subject"`

	// Date is the provider's creation timestamp, kept verbatim.
	Date string `json:"date"`

	// Intro is the short preview text of the body.
	Intro string `json:"intro"`

	// Seen reports whether the message was opened before.
	Seen bool `json:"seen"`
}

// SenderName returns the display part of From, without the address.
func (m MessageSummary) SenderName() string {
	return senderName(m.From)
}

// Time parses Date. The zero time is returned when Date is not RFC 3339.
func (m MessageSummary) Time() time.Time {
	return parseDate(m.Date)
}

// MessageDetail is the full content of a single message.
type MessageDetail struct {
	ID      string
	From    string
	To      string
	Subject string
	Date    string

	// HTMLBody is the HTML body; nil when the message has none.
	HTMLBody *string

	// Body is the plain-text body, or the preview text when the
	// provider returned no text part.
	Body string

	Attachments []Attachment
}

// Time parses Date. The zero time is returned when Date is not RFC 3339.
func (m MessageDetail) Time() time.Time {
	return parseDate(m.Date)
}

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename    string
	Size        int64
	DownloadURL string
}

// Header is a single raw message header field.
type Header struct {
	Key   string
	Value string
}

func senderName(from string) string {
	name, rest, found := strings.Cut(from, "<")
	if !found {
		return strings.TrimSpace(from)
	}
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return strings.TrimSpace(strings.TrimSuffix(rest, ">"))
}

func parseDate(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
