package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/tempmail/internal/model"
)

// opTimeout bounds a whole mailbox operation, which may span several
// provider requests.
const opTimeout = 90 * time.Second

// initMsg starts the mailbox lifecycle. Only the first one is honored.
type initMsg struct{}

// restoredMsg carries the outcome of restoring the persisted session.
type restoredMsg struct {
	epoch   uint64
	address string
	ok      bool
}

// provisionedMsg carries the outcome of creating a new mailbox.
type provisionedMsg struct {
	epoch   uint64
	address string
	err     error
}

// detailLoadedMsg carries a fetched message.
type detailLoadedMsg struct {
	epoch  uint64
	id     string
	detail *model.MessageDetail
	err    error
}

// headersLoadedMsg carries the raw headers of a message.
type headersLoadedMsg struct {
	epoch   uint64
	id      string
	headers []model.Header
	err     error
}

func (m Model) restoreSession(epoch uint64) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		address, ok := svc.RestoreSession(ctx)
		return restoredMsg{epoch: epoch, address: address, ok: ok}
	}
}

// provisionAccount runs under ctx, which the model cancels when a newer
// provisioning supersedes this one.
func (m Model) provisionAccount(ctx context.Context, epoch uint64) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		address, err := svc.ProvisionAccount(ctx)
		return provisionedMsg{epoch: epoch, address: address, err: err}
	}
}

func (m Model) fetchMessage(epoch uint64, id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		detail, err := svc.FetchMessage(ctx, id)
		return detailLoadedMsg{epoch: epoch, id: id, detail: detail, err: err}
	}
}

func (m Model) fetchHeaders(epoch uint64, id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		headers, err := svc.FetchHeaders(ctx, id)
		return headersLoadedMsg{epoch: epoch, id: id, headers: headers, err: err}
	}
}
