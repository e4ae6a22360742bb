package model

import "time"

// SessionKey is the storage key under which the active session record
// is persisted.
const SessionKey = "tempmail_session"

// SessionTTL is how long a provisioned mailbox is considered usable
// after creation.
const SessionTTL = 30 * time.Minute

// Session holds the credentials of the active mailbox.
// Either all four fields are set or the session does not exist.
type Session struct {
	// Address is the full mailbox address (local@domain).
	Address string

	// Password is the secret the account was created with.
	Password string

	// Token is the bearer token issued by the provider.
	Token string

	// CreatedAt is when the account was provisioned.
	CreatedAt time.Time
}

// Complete reports whether every field of the session is populated.
func (s Session) Complete() bool {
	return s.Address != "" &&
		s.Password != "" &&
		s.Token != "" &&
		!s.CreatedAt.IsZero()
}

// Age returns how long ago the session was created, relative to now.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
