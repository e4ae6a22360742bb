package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/tempmail/internal/mailbox"
	"github.com/nhle/tempmail/internal/mailtm"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/session"
	appsync "github.com/nhle/tempmail/internal/sync"
	"github.com/nhle/tempmail/internal/ui/confirm"
	"github.com/nhle/tempmail/internal/ui/inbox"
	"github.com/nhle/tempmail/tests/testutil"
)

func testConfig() model.AppConfig {
	return model.AppConfig{
		Polling: model.PollingConfig{IntervalSec: 3600, CooldownSec: 30},
		QR:      model.QRConfig{BaseURL: "https://qr.test/", Size: 250},
	}
}

func newTestModel(t *testing.T) (Model, *testutil.FakeProvider) {
	t.Helper()

	provider := testutil.NewFakeProvider(t)
	svc := mailbox.NewService(
		mailtm.NewClient(provider.URL(), 5*time.Second),
		session.NewManager(testutil.NewTestStore(t)),
	)

	m := New(svc, testConfig(), WithClipboard(func(string) error { return nil }))
	t.Cleanup(m.Close)

	return m, provider
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()

	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want app.Model", next)
	}
	return nm, cmd
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// activate puts m into the active phase for address at the current epoch.
func activate(t *testing.T, m Model, address string) Model {
	t.Helper()

	m, _ = update(t, m, initMsg{})
	m, _ = update(t, m, restoredMsg{epoch: m.epoch, address: address, ok: true})
	if m.Phase() != PhaseActive {
		t.Fatalf("phase = %s, want polling", m.Phase())
	}
	return m
}

// provisionResult runs cmd, descending into batches, and returns the
// provisioning outcome it produced.
func provisionResult(t *testing.T, cmd tea.Cmd) provisionedMsg {
	t.Helper()

	if cmd == nil {
		t.Fatal("no command to run")
	}
	switch msg := cmd().(type) {
	case provisionedMsg:
		return msg
	case tea.BatchMsg:
		for _, c := range msg {
			if c == nil {
				continue
			}
			if res, ok := c().(provisionedMsg); ok {
				return res
			}
		}
	}
	t.Fatal("command did not provision")
	return provisionedMsg{}
}

func confirmResult(ok bool) confirm.ResultMsg {
	return confirm.ResultMsg{Action: deleteAction, Confirmed: ok}
}

func summaries(ids ...string) []model.MessageSummary {
	out := make([]model.MessageSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.MessageSummary{
			ID:      id,
			From:    "A <a@x.com>",
			Subject: "Subject " + id,
			Date:    "2024-01-01T00:00:00Z",
		})
	}
	return out
}

func TestInitRunsOnce(t *testing.T) {
	m, _ := newTestModel(t)

	m, cmd := update(t, m, initMsg{})
	if cmd == nil {
		t.Fatal("first init returned no command")
	}
	if m.Phase() != PhaseProvisioning {
		t.Errorf("phase = %s, want provisioning", m.Phase())
	}

	if _, cmd := update(t, m, initMsg{}); cmd != nil {
		t.Error("second init was not ignored")
	}
}

func TestStartupProvisionsWithoutStoredSession(t *testing.T) {
	m, provider := newTestModel(t)

	m, _ = update(t, m, initMsg{})
	// The init batch also carries the spinner tick; run the restore directly.
	restored := m.restoreSession(m.epoch)().(restoredMsg)
	if restored.ok {
		t.Fatal("restored a session from an empty store")
	}

	m, cmd := update(t, m, restored)
	if cmd == nil {
		t.Fatal("no provisioning command after failed restore")
	}
	out := cmd()
	provisioned, ok := out.(provisionedMsg)
	if !ok {
		t.Fatalf("command produced %T, want provisionedMsg", out)
	}
	if provisioned.err != nil {
		t.Fatalf("provisioning: %v", provisioned.err)
	}

	m, _ = update(t, m, provisioned)
	if m.Phase() != PhaseActive {
		t.Fatalf("phase = %s, want polling", m.Phase())
	}
	if !strings.HasSuffix(m.address, "@example.com") {
		t.Errorf("address = %q", m.address)
	}
	if got := provider.Accounts(); len(got) != 1 || got[0] != m.address {
		t.Errorf("accounts = %v, address = %q", got, m.address)
	}
}

func TestStartupRestoresStoredSession(t *testing.T) {
	m, provider := newTestModel(t)
	if _, err := m.svc.ProvisionAccount(context.Background()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	want := m.svc.Address()

	m, _ = update(t, m, initMsg{})
	m, cmd := update(t, m, m.restoreSession(m.epoch)())

	if cmd != nil {
		t.Error("restored startup still issued a command")
	}
	if m.address != want || m.Phase() != PhaseActive {
		t.Errorf("address = %q phase = %s, want %q polling", m.address, m.Phase(), want)
	}
	if n := len(provider.Accounts()); n != 1 {
		t.Errorf("accounts created = %d, want 1", n)
	}
}

func TestProvisioningFailureReturnsToUninitialized(t *testing.T) {
	m, _ := newTestModel(t)

	m, _ = update(t, m, initMsg{})
	m, _ = update(t, m, restoredMsg{epoch: m.epoch})
	m, _ = update(t, m, provisionedMsg{epoch: m.epoch, err: mailbox.ErrNoDomainsAvailable})

	if m.Phase() != PhaseUninitialized {
		t.Errorf("phase = %s, want no mailbox", m.Phase())
	}
	if m.errMsg == "" {
		t.Error("no error shown after failed provisioning")
	}
}

func TestStaleProvisioningResultIsDiscarded(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "first@example.com")
	old := m.epoch

	m, _ = update(t, m, keyPress("n"))
	if m.epoch == old {
		t.Fatal("regenerate did not advance the epoch")
	}

	m, _ = update(t, m, provisionedMsg{epoch: old, address: "late@example.com"})
	if m.address != "" || m.Phase() != PhaseProvisioning {
		t.Errorf("stale result applied: address = %q phase = %s", m.address, m.Phase())
	}

	m, _ = update(t, m, provisionedMsg{epoch: m.epoch, address: "second@example.com"})
	if m.address != "second@example.com" {
		t.Errorf("address = %q, want second@example.com", m.address)
	}
}

func TestOverlappingRegenerationsKeepSessionInSync(t *testing.T) {
	m, provider := newTestModel(t)
	m = activate(t, m, "old@example.com")

	m, first := update(t, m, keyPress("n"))
	m, second := update(t, m, keyPress("n"))

	// The newer run finishes before the superseded one.
	newer := provisionResult(t, second)
	older := provisionResult(t, first)
	if newer.err != nil {
		t.Fatalf("newer provisioning: %v", newer.err)
	}
	if older.err == nil {
		t.Error("superseded provisioning completed")
	}

	m, _ = update(t, m, newer)
	m, _ = update(t, m, older)

	if m.address != newer.address {
		t.Errorf("address = %q, want %q", m.address, newer.address)
	}
	if got := m.svc.Address(); got != m.address {
		t.Errorf("session address = %q, view address = %q", got, m.address)
	}
	if n := len(provider.Accounts()); n != 1 {
		t.Errorf("accounts created = %d, want 1", n)
	}

	restored, ok := m.svc.RestoreSession(context.Background())
	if !ok || restored != m.address {
		t.Errorf("persisted address = %q (ok=%v), want %q", restored, ok, m.address)
	}
}

func TestStalePollResultIsDiscarded(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")

	m, cmd := update(t, m, appsync.ResultMsg{Epoch: m.epoch + 1, Messages: summaries("1")})
	if cmd == nil {
		t.Error("result subscription not re-armed")
	}
	if m.inboxView.Len() != 0 {
		t.Fatalf("stale result reached the inbox")
	}

	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1", "2")})
	if m.inboxView.Len() != 2 {
		t.Errorf("inbox has %d messages, want 2", m.inboxView.Len())
	}
}

func TestRegenerateClearsViewState(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})
	m, _ = update(t, m, inbox.SelectedMessageMsg{ID: "1"})
	m, _ = update(t, m, detailLoadedMsg{
		epoch:  m.epoch,
		id:     "1",
		detail: &model.MessageDetail{ID: "1", Date: "2024-01-01T00:00:00Z"},
	})
	if m.currentView != ViewMessage {
		t.Fatalf("view = %d, want message view", m.currentView)
	}

	m, cmd := update(t, m, keyPress("n"))
	if cmd == nil {
		t.Fatal("regenerate issued no command")
	}
	if m.currentView != ViewInbox {
		t.Errorf("view = %d, want inbox", m.currentView)
	}
	if m.inboxView.Len() != 0 || m.messageView.Message() != nil {
		t.Error("messages survived regeneration")
	}
	if m.Phase() != PhaseProvisioning {
		t.Errorf("phase = %s, want provisioning", m.Phase())
	}
	if m.poller.State() != appsync.StateIdle {
		t.Errorf("poller = %s, want idle while provisioning", m.poller.State())
	}
}

func TestDetailFailureKeepsInbox(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})

	m, _ = update(t, m, inbox.SelectedMessageMsg{ID: "1"})
	m, _ = update(t, m, detailLoadedMsg{epoch: m.epoch, id: "1", err: errors.New("boom")})

	if m.currentView != ViewInbox {
		t.Errorf("view = %d, want inbox", m.currentView)
	}
	if m.messageView.Message() != nil {
		t.Error("partial message shown after failure")
	}
	if m.inboxView.Len() != 1 {
		t.Errorf("inbox has %d messages, want 1", m.inboxView.Len())
	}
}

func TestDetailBorrowsListDate(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})

	m, _ = update(t, m, inbox.SelectedMessageMsg{ID: "1"})
	m, _ = update(t, m, detailLoadedMsg{
		epoch:  m.epoch,
		id:     "1",
		detail: &model.MessageDetail{ID: "1", Subject: "Subject 1"},
	})

	got := m.messageView.Message()
	if got == nil {
		t.Fatal("message not shown")
	}
	if got.Date != "2024-01-01T00:00:00Z" {
		t.Errorf("Date = %q, want the list date", got.Date)
	}
}

func TestDetailForOtherSelectionIsDiscarded(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1", "2")})

	m, _ = update(t, m, inbox.SelectedMessageMsg{ID: "1"})
	m, _ = update(t, m, inbox.SelectedMessageMsg{ID: "2"})
	m, _ = update(t, m, detailLoadedMsg{epoch: m.epoch, id: "1", detail: &model.MessageDetail{ID: "1"}})

	if m.currentView != ViewInbox {
		t.Error("superseded selection was shown")
	}
}

func TestRateLimitedPollPausesAndResumes(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})

	limited := &mailtm.RateLimitedError{Method: "GET", Path: "/messages?page=1"}
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Err: limited, Backoff: 30 * time.Second})
	if m.Phase() != PhaseBackoff {
		t.Fatalf("phase = %s, want paused", m.Phase())
	}
	if m.inboxView.Len() != 1 {
		t.Error("rate limit cleared the inbox")
	}

	// A manual refresh succeeding while paused keeps the pause.
	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1"), Manual: true})
	if m.Phase() != PhaseBackoff {
		t.Errorf("phase = %s after manual refresh, want paused", m.Phase())
	}

	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})
	if m.Phase() != PhaseActive {
		t.Errorf("phase = %s after resumption, want polling", m.Phase())
	}
}

func TestUnchangedListIsSkipped(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")

	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("1")})
	hash := m.listHash
	if len(m.newIDs) != 0 {
		t.Errorf("first list marked %d messages new", len(m.newIDs))
	}

	if cmd := m.applyMessages(summaries("1")); cmd != nil {
		t.Error("identical list triggered an update")
	}
	if m.listHash != hash {
		t.Error("hash changed for an identical list")
	}

	m, _ = update(t, m, appsync.ResultMsg{Epoch: m.epoch, Messages: summaries("2", "1")})
	if !m.newIDs["2"] || len(m.newIDs) != 1 {
		t.Errorf("new ids = %v, want only 2", m.newIDs)
	}
	if m.unread != 2 {
		t.Errorf("unread = %d, want 2", m.unread)
	}
}

func TestCopyShowsNote(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")

	var copied string
	m.copy = func(s string) error { copied = s; return nil }

	_, cmd := update(t, m, keyPress("c"))
	if cmd == nil {
		t.Fatal("copy issued no command")
	}
	msg := cmd()
	if copied != "a@example.com" {
		t.Errorf("copied %q", copied)
	}

	m, _ = update(t, m, msg)
	if m.copyNote == "" {
		t.Fatal("no copied note")
	}
	m, _ = update(t, m, copyResetMsg{seq: m.copySeq})
	if m.copyNote != "" {
		t.Error("copied note not cleared")
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")

	m, _ = update(t, m, keyPress("d"))
	if m.currentView != ViewConfirm {
		t.Fatalf("view = %d, want confirmation", m.currentView)
	}

	m, _ = update(t, m, confirmResult(false))
	if m.address != "a@example.com" || m.currentView != ViewInbox {
		t.Fatalf("declined delete changed state: address = %q view = %d", m.address, m.currentView)
	}

	m, _ = update(t, m, keyPress("d"))
	m, cmd := update(t, m, confirmResult(true))
	if cmd == nil || m.Phase() != PhaseProvisioning {
		t.Errorf("confirmed delete: phase = %s cmd = %v", m.Phase(), cmd != nil)
	}
}

func TestViewRendersAddress(t *testing.T) {
	m, _ := newTestModel(t)
	m = activate(t, m, "a@example.com")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	if !strings.Contains(out, "a@example.com") {
		t.Errorf("view does not show the address:\n%s", out)
	}
	if !strings.Contains(out, "Your inbox is empty") {
		t.Errorf("view does not show the empty inbox:\n%s", out)
	}
}
