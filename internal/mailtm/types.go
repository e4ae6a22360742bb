package mailtm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Collection is the hydra envelope wrapping every list response.
type Collection[T any] struct {
	Members    []T `json:"hydra:member"`
	TotalItems int `json:"hydra:totalItems"`
}

// Domain is a mailbox domain offered by the provider.
type Domain struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	IsActive  bool   `json:"isActive"`
	IsPrivate bool   `json:"isPrivate"`
}

// Credentials is the request body for POST /accounts and POST /token.
type Credentials struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

// Account is the response from POST /accounts.
type Account struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// TokenResponse is the response from POST /token.
type TokenResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// Address is a mail participant.
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// String renders the participant as "name <address>".
func (a Address) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// MessageRecord is a message as returned by GET /messages and
// GET /messages/{id}. List responses leave the body fields empty.
type MessageRecord struct {
	ID             string       `json:"id"`
	From           Address      `json:"from"`
	To             []Address    `json:"to"`
	Subject        string       `json:"subject"`
	Intro          string       `json:"intro"`
	Seen           bool         `json:"seen"`
	HasAttachments bool         `json:"hasAttachments"`
	Size           int64        `json:"size"`
	CreatedAt      string       `json:"createdAt"`
	Text           *string      `json:"text"`
	HTML           HTMLField    `json:"html"`
	Attachments    []Attachment `json:"attachments"`
}

// Attachment is an attachment entry of a message record.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

// Source is the response from GET /sources/{id}.
type Source struct {
	ID          string `json:"id"`
	DownloadURL string `json:"downloadUrl"`
	Data        string `json:"data"`
}

// HTMLField decodes the "html" property, which the provider returns
// either as a string or as an array of strings.
type HTMLField struct {
	Value *string
}

// UnmarshalJSON accepts null, a string, or an array whose first element
// is taken.
func (h *HTMLField) UnmarshalJSON(data []byte) error {
	h.Value = nil

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '[' {
		var parts []*string
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return fmt.Errorf("decoding html array: %w", err)
		}
		if len(parts) > 0 {
			h.Value = parts[0]
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("decoding html string: %w", err)
	}
	h.Value = &s
	return nil
}
