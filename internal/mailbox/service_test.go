package mailbox

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nhle/tempmail/internal/mailtm"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/session"
	"github.com/nhle/tempmail/internal/store"
	"github.com/nhle/tempmail/tests/testutil"
)

type fixture struct {
	provider *testutil.FakeProvider
	kv       *store.SQLiteStore
	sessions *session.Manager
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := testutil.NewFakeProvider(t)
	kv := testutil.NewTestStore(t)
	sessions := session.NewManager(kv)
	svc := NewService(mailtm.NewClient(provider.URL(), 5*time.Second), sessions)

	return &fixture{provider: provider, kv: kv, sessions: sessions, svc: svc}
}

func (f *fixture) provision(t *testing.T) string {
	t.Helper()

	addr, err := f.svc.ProvisionAccount(context.Background())
	if err != nil {
		t.Fatalf("ProvisionAccount: %v", err)
	}
	return addr
}

func TestProvisionAccount(t *testing.T) {
	f := newFixture(t)
	f.provider.Domains = []map[string]any{
		{"id": "d0", "domain": "inactive.test", "isActive": false},
		{"id": "d1", "domain": "mail.test", "isActive": true},
	}
	f.svc.newLocalPart = func() string { return "abcdef1234" }

	addr := f.provision(t)

	if addr != "abcdef1234@mail.test" {
		t.Errorf("address = %q, want abcdef1234@mail.test", addr)
	}

	// The persisted session must carry exactly the returned address.
	fresh := session.NewManager(f.kv)
	stored, ok := fresh.Restore(context.Background())
	if !ok {
		t.Fatal("no session persisted after provisioning")
	}
	if stored.Address != addr {
		t.Errorf("persisted address = %q, want %q", stored.Address, addr)
	}
	if stored.Password != "Pwdabcdef1234!" {
		t.Errorf("persisted password = %q", stored.Password)
	}
	if stored.Token != "test-token" {
		t.Errorf("persisted token = %q", stored.Token)
	}
	if got := f.provider.Accounts(); len(got) != 1 || got[0] != addr {
		t.Errorf("accounts created = %v", got)
	}
}

func TestProvisionAccountRandomLocalPart(t *testing.T) {
	f := newFixture(t)

	addr := f.provision(t)

	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		t.Fatalf("address %q has no @", addr)
	}
	if domain != "example.com" {
		t.Errorf("domain = %q, want example.com", domain)
	}
	if len(local) != localPartLen {
		t.Errorf("local part %q has length %d, want %d", local, len(local), localPartLen)
	}
}

func TestProvisionAccountNoDomains(t *testing.T) {
	f := newFixture(t)
	f.provider.Domains = nil

	_, err := f.svc.ProvisionAccount(context.Background())
	if !errors.Is(err, ErrNoDomainsAvailable) {
		t.Fatalf("error = %v, want ErrNoDomainsAvailable", err)
	}
}

func TestProvisionAccountFailureLeavesNoSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provision(t)

	f.provider.SetFail("POST /token", http.StatusInternalServerError)

	_, err := f.svc.ProvisionAccount(ctx)
	if mailtm.StatusCode(err) != http.StatusInternalServerError {
		t.Fatalf("error = %v, want provider error 500", err)
	}
	if f.svc.Address() != "" {
		t.Errorf("Address = %q after failed provisioning", f.svc.Address())
	}
	if _, err := f.kv.Get(ctx, model.SessionKey); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("stored session after failure: err = %v, want ErrNotFound", err)
	}
}

func TestProvisionAccountCancelledKeepsSession(t *testing.T) {
	f := newFixture(t)
	addr := f.provision(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.ProvisionAccount(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := f.svc.Address(); got != addr {
		t.Errorf("Address = %q, want %q", got, addr)
	}
	if n := len(f.provider.Accounts()); n != 1 {
		t.Errorf("accounts created = %d, want 1", n)
	}

	restored, ok := session.NewManager(f.kv).Restore(context.Background())
	if !ok || restored.Address != addr {
		t.Errorf("persisted session = %q (ok=%v), want %q", restored.Address, ok, addr)
	}
}

func TestListMessagesRequiresSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListMessages(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := f.svc.FetchMessage(context.Background(), "1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("FetchMessage error = %v, want ErrNotAuthenticated", err)
	}
}

func TestListMessagesMapping(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.provider.SetMessages(map[string]any{
		"id":        "1",
		"from":      map[string]any{"name": "A", "address": "a@x.com"},
		"subject":   "Hi",
		"intro":     "hello there",
		"seen":      true,
		"createdAt": "2024-01-01T00:00:00Z",
	})

	got, err := f.svc.ListMessages(context.Background())
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}

	want := []model.MessageSummary{{
		ID:      "1",
		From:    "A <a@x.com>",
		Subject: "Hi",
		Date:    "2024-01-01T00:00:00Z",
		Intro:   "hello there",
		Seen:    true,
	}}
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("ListMessages = %+v, want %+v", got, want)
	}
}

func TestListMessagesRateLimited(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.provider.SetFail("GET /messages", http.StatusTooManyRequests)

	_, err := f.svc.ListMessages(context.Background())
	if !mailtm.IsRateLimited(err) {
		t.Fatalf("error = %v, want rate limited", err)
	}
}

func TestFetchMessageBodies(t *testing.T) {
	tests := []struct {
		name     string
		record   map[string]any
		wantHTML *string
		wantBody string
	}{
		{
			name:     "html array",
			record:   map[string]any{"html": []string{"<p>hi</p>"}, "text": "hi"},
			wantHTML: strPtr("<p>hi</p>"),
			wantBody: "hi",
		},
		{
			name:     "html string",
			record:   map[string]any{"html": "<p>hi</p>", "text": "hi"},
			wantHTML: strPtr("<p>hi</p>"),
			wantBody: "hi",
		},
		{
			name:     "plain only",
			record:   map[string]any{"text": "plain"},
			wantBody: "plain",
		},
		{
			name:     "intro fallback",
			record:   map[string]any{"intro": "preview"},
			wantBody: "preview",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provision(t)

			rec := map[string]any{
				"id":        "m1",
				"from":      map[string]any{"name": "A", "address": "a@x.com"},
				"to":        []map[string]any{{"name": "", "address": "me@example.com"}},
				"subject":   "Hi",
				"createdAt": "2024-01-01T00:00:00Z",
			}
			for k, v := range tt.record {
				rec[k] = v
			}
			f.provider.Details["m1"] = rec

			got, err := f.svc.FetchMessage(context.Background(), "m1")
			if err != nil {
				t.Fatalf("FetchMessage: %v", err)
			}

			switch {
			case tt.wantHTML == nil && got.HTMLBody != nil:
				t.Errorf("HTMLBody = %q, want nil", *got.HTMLBody)
			case tt.wantHTML != nil && (got.HTMLBody == nil || *got.HTMLBody != *tt.wantHTML):
				t.Errorf("HTMLBody = %v, want %q", got.HTMLBody, *tt.wantHTML)
			}
			if got.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", got.Body, tt.wantBody)
			}
			if got.From != "A <a@x.com>" {
				t.Errorf("From = %q", got.From)
			}
			if got.To != "me@example.com" {
				t.Errorf("To = %q", got.To)
			}
		})
	}
}

func TestFetchMessageAttachments(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.provider.Details["m1"] = map[string]any{
		"id":   "m1",
		"from": map[string]any{"name": "A", "address": "a@x.com"},
		"to": []map[string]any{
			{"name": "", "address": "me@example.com"},
			{"name": "", "address": "you@example.com"},
		},
		"attachments": []map[string]any{
			{"id": "ATTACH0", "filename": "a.pdf", "size": 2048, "downloadUrl": "/messages/m1/attachment/ATTACH0"},
		},
	}

	got, err := f.svc.FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FetchMessage: %v", err)
	}

	if got.To != "me@example.com, you@example.com" {
		t.Errorf("To = %q", got.To)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	a := got.Attachments[0]
	if a.Filename != "a.pdf" || a.Size != 2048 {
		t.Errorf("attachment = %+v", a)
	}
	if a.DownloadURL != f.provider.URL()+"/messages/m1/attachment/ATTACH0" {
		t.Errorf("DownloadURL = %q", a.DownloadURL)
	}
}

func TestFetchHeaders(t *testing.T) {
	f := newFixture(t)
	f.provision(t)
	f.provider.Sources["m1"] = "From: A <a@x.com>\r\n" +
		"To: me@example.com\r\n" +
		"Subject: =?UTF-8?Q?Caf=C3=A9?=\r\n" +
		"\r\n" +
		"body\r\n"

	got, err := f.svc.FetchHeaders(context.Background(), "m1")
	if err != nil {
		t.Fatalf("FetchHeaders: %v", err)
	}

	want := []model.Header{
		{Key: "From", Value: "A <a@x.com>"},
		{Key: "To", Value: "me@example.com"},
		{Key: "Subject", Value: "Café"},
	}
	if len(got) != len(want) {
		t.Fatalf("headers = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("header %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRestoreAndClearSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	addr := f.provision(t)

	restarted := NewService(mailtm.NewClient(f.provider.URL(), time.Second), session.NewManager(f.kv))
	for i := 0; i < 2; i++ {
		got, ok := restarted.RestoreSession(ctx)
		if !ok || got != addr {
			t.Fatalf("RestoreSession #%d = %q, %v; want %q, true", i+1, got, ok, addr)
		}
	}
	if n := len(f.provider.Accounts()); n != 1 {
		t.Errorf("accounts created = %d, want 1", n)
	}

	if err := restarted.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if err := restarted.ClearSession(ctx); err != nil {
		t.Fatalf("second ClearSession: %v", err)
	}
	if restarted.Address() != "" {
		t.Errorf("Address = %q after clear", restarted.Address())
	}
	if _, ok := restarted.RestoreSession(ctx); ok {
		t.Error("RestoreSession found a session after clear")
	}
}

func strPtr(s string) *string { return &s }
