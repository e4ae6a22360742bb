// Package session persists the active mailbox credentials and keeps the
// in-memory copy consistent with the stored one.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/store"
)

// ErrMalformed is returned by decode when the stored record cannot be
// turned into a complete session.
var ErrMalformed = errors.New("session: malformed record")

// record is the persisted JSON shape. CreatedAt is Unix milliseconds.
type record struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	Token     string `json:"token"`
	CreatedAt int64  `json:"createdAt"`
}

// Manager owns the active session. Persisted and in-memory copies are
// always updated together: the store is written first and memory only
// follows a successful write.
type Manager struct {
	kv  store.KV
	key string
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	current *model.Session
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL overrides the validity window of a stored session.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// NewManager creates a Manager persisting under model.SessionKey.
func NewManager(kv store.KV, opts ...Option) *Manager {
	m := &Manager{
		kv:  kv,
		key: model.SessionKey,
		ttl: model.SessionTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a copy of the active session.
func (m *Manager) Current() (model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return model.Session{}, false
	}
	return *m.current, true
}

// Token returns the bearer token of the active session, if any.
func (m *Manager) Token() string {
	s, ok := m.Current()
	if !ok {
		return ""
	}
	return s.Token
}

// Now returns the manager's notion of the current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Save persists s and makes it the active session.
func (m *Manager) Save(ctx context.Context, s model.Session) error {
	if !s.Complete() {
		return fmt.Errorf("saving session for %q: %w", s.Address, ErrMalformed)
	}

	data, err := encode(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.kv.Set(ctx, m.key, data); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	m.current = &s
	return nil
}

// Clear removes the persisted record and then the in-memory session.
// It is a no-op when nothing is stored.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.kv.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("removing stored session: %w", err)
	}
	m.current = nil
	return nil
}

// Restore loads the persisted session and reinstates it when it is
// younger than the TTL. Expired or malformed records are deleted.
// ok is false whenever no usable session exists.
func (m *Manager) Restore(ctx context.Context) (model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.kv.Get(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, false
	}
	if err != nil {
		slog.Error("reading stored session", "err", err)
		return model.Session{}, false
	}

	s, err := decode(raw)
	if err != nil {
		slog.Warn("discarding stored session", "err", err)
		m.discardLocked(ctx)
		return model.Session{}, false
	}

	age := s.Age(m.now())
	if age < 0 {
		slog.Warn("discarding stored session created in the future",
			"address", s.Address, "created_at", s.CreatedAt)
		m.discardLocked(ctx)
		return model.Session{}, false
	}
	if age >= m.ttl {
		slog.Info("stored session expired",
			"address", s.Address, "age", age.Round(time.Second))
		m.discardLocked(ctx)
		return model.Session{}, false
	}

	m.current = &s
	return s, true
}

// discardLocked drops both copies. The caller holds m.mu.
func (m *Manager) discardLocked(ctx context.Context) {
	if err := m.kv.Delete(ctx, m.key); err != nil {
		slog.Error("removing stored session", "err", err)
		return
	}
	m.current = nil
}

func encode(s model.Session) (string, error) {
	data, err := json.Marshal(record{
		Address:   s.Address,
		Password:  s.Password,
		Token:     s.Token,
		CreatedAt: s.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("encoding session: %w", err)
	}
	return string(data), nil
}

func decode(raw string) (model.Session, error) {
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return model.Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.CreatedAt <= 0 {
		return model.Session{}, fmt.Errorf("%w: missing createdAt", ErrMalformed)
	}

	s := model.Session{
		Address:   r.Address,
		Password:  r.Password,
		Token:     r.Token,
		CreatedAt: time.UnixMilli(r.CreatedAt),
	}
	if !s.Complete() {
		return model.Session{}, fmt.Errorf("%w: incomplete record", ErrMalformed)
	}
	return s, nil
}
