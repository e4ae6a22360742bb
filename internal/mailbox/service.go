// Package mailbox implements the mail client: it provisions disposable
// accounts on the provider, keeps the session in sync and maps provider
// records into the application's message model.
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/tempmail/internal/mailtm"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/session"
)

var (
	// ErrNoDomainsAvailable is returned when the provider offers no
	// active domain to create an account on.
	ErrNoDomainsAvailable = errors.New("no domains available")

	// ErrNotAuthenticated is returned when a mailbox operation runs
	// without an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// localPartLen is the length of generated mailbox names.
const localPartLen = 10

// Service is the mail client used by the controller and the CLI.
type Service struct {
	client   *mailtm.Client
	sessions *session.Manager

	// details coalesces concurrent fetches of the same message.
	details singleflight.Group

	// provisioning serializes ProvisionAccount so an abandoned run can
	// never clear or overwrite the session of a newer one.
	provisioning sync.Mutex

	newLocalPart func() string
}

// NewService creates a Service over the given provider client and
// session manager.
func NewService(client *mailtm.Client, sessions *session.Manager) *Service {
	return &Service{
		client:       client,
		sessions:     sessions,
		newLocalPart: randomLocalPart,
	}
}

// Address returns the address of the active session, or "".
func (s *Service) Address() string {
	cur, ok := s.sessions.Current()
	if !ok {
		return ""
	}
	return cur.Address
}

// Session returns the active session.
func (s *Service) Session() (model.Session, bool) {
	return s.sessions.Current()
}

// ProvisionAccount replaces the active session with a freshly created
// mailbox and returns its address. The previous session is cleared
// first, so a failure at any step leaves no session at all. A run whose
// ctx is cancelled leaves the session store untouched from then on.
func (s *Service) ProvisionAccount(ctx context.Context) (string, error) {
	s.provisioning.Lock()
	defer s.provisioning.Unlock()

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("provisioning abandoned: %w", err)
	}
	if err := s.sessions.Clear(ctx); err != nil {
		return "", fmt.Errorf("clearing previous session: %w", err)
	}

	domains, err := s.client.Domains(ctx)
	if err != nil {
		return "", fmt.Errorf("listing domains: %w", err)
	}
	domain, ok := firstActive(domains)
	if !ok {
		return "", ErrNoDomainsAvailable
	}

	local := s.newLocalPart()
	address := local + "@" + domain
	password := "Pwd" + local + "!"

	if _, err := s.client.CreateAccount(ctx, address, password); err != nil {
		return "", fmt.Errorf("creating account %s: %w", address, err)
	}

	token, err := s.client.Token(ctx, address, password)
	if err != nil {
		return "", fmt.Errorf("requesting token for %s: %w", address, err)
	}

	sess := model.Session{
		Address:   address,
		Password:  password,
		Token:     token,
		CreatedAt: s.sessions.Now(),
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("provisioning %s abandoned: %w", address, err)
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", err
	}

	slog.Info("provisioned mailbox", "address", address)
	return address, nil
}

// RestoreSession reinstates a persisted, unexpired session and returns
// its address.
func (s *Service) RestoreSession(ctx context.Context) (string, bool) {
	sess, ok := s.sessions.Restore(ctx)
	if !ok {
		return "", false
	}
	slog.Info("restored mailbox", "address", sess.Address)
	return sess.Address, true
}

// ClearSession drops the active session and its persisted record.
func (s *Service) ClearSession(ctx context.Context) error {
	return s.sessions.Clear(ctx)
}

// ListMessages fetches the first page of the inbox.
func (s *Service) ListMessages(ctx context.Context) ([]model.MessageSummary, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}

	records, err := s.client.Messages(ctx, token, 1)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	summaries := make([]model.MessageSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, toSummary(r))
	}
	return summaries, nil
}

// FetchMessage fetches and maps the full content of message id.
func (s *Service) FetchMessage(ctx context.Context, id string) (*model.MessageDetail, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}

	v, err, _ := s.details.Do(token+"/"+id, func() (interface{}, error) {
		rec, err := s.client.Message(ctx, token, id)
		if err != nil {
			return nil, fmt.Errorf("fetching message %s: %w", id, err)
		}
		return s.toDetail(*rec), nil
	})
	if err != nil {
		return nil, err
	}

	// Every caller gets its own copy of the shared result.
	detail := *v.(*model.MessageDetail)
	detail.Attachments = append([]model.Attachment(nil), detail.Attachments...)
	return &detail, nil
}

// FetchHeaders returns the header block of message id, in source order.
func (s *Service) FetchHeaders(ctx context.Context, id string) ([]model.Header, error) {
	token, err := s.token()
	if err != nil {
		return nil, err
	}

	src, err := s.client.Source(ctx, token, id)
	if err != nil {
		return nil, fmt.Errorf("fetching source of %s: %w", id, err)
	}
	return parseHeaders(src.Data)
}

func (s *Service) token() (string, error) {
	token := s.sessions.Token()
	if token == "" {
		return "", ErrNotAuthenticated
	}
	return token, nil
}

func (s *Service) toDetail(r mailtm.MessageRecord) *model.MessageDetail {
	to := make([]string, 0, len(r.To))
	for _, a := range r.To {
		to = append(to, a.Address)
	}

	body := r.Intro
	if r.Text != nil && *r.Text != "" {
		body = *r.Text
	}

	attachments := make([]model.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, model.Attachment{
			Filename:    a.Filename,
			Size:        a.Size,
			DownloadURL: s.client.ResolveURL(a.DownloadURL),
		})
	}

	return &model.MessageDetail{
		ID:          r.ID,
		From:        r.From.String(),
		To:          strings.Join(to, ", "),
		Subject:     r.Subject,
		Date:        r.CreatedAt,
		HTMLBody:    r.HTML.Value,
		Body:        body,
		Attachments: attachments,
	}
}

func toSummary(r mailtm.MessageRecord) model.MessageSummary {
	return model.MessageSummary{
		ID:      r.ID,
		From:    r.From.String(),
		Subject: r.Subject,
		Date:    r.CreatedAt,
		Intro:   r.Intro,
		Seen:    r.Seen,
	}
}

func firstActive(domains []mailtm.Domain) (string, bool) {
	for _, d := range domains {
		if d.IsActive && d.Domain != "" {
			return d.Domain, true
		}
	}
	return "", false
}

func randomLocalPart() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:localPartLen]
}

func parseHeaders(raw string) ([]model.Header, error) {
	mr, err := mail.CreateReader(bytes.NewReader([]byte(raw)))
	if err != nil {
		return nil, fmt.Errorf("parsing message source: %w", err)
	}
	defer mr.Close()

	var headers []model.Header
	fields := mr.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers = append(headers, model.Header{Key: fields.Key(), Value: value})
	}
	return headers, nil
}

// Remaining returns how long the active mailbox stays valid.
func (s *Service) Remaining() time.Duration {
	cur, ok := s.sessions.Current()
	if !ok {
		return 0
	}
	left := model.SessionTTL - cur.Age(s.sessions.Now())
	if left < 0 {
		return 0
	}
	return left
}
