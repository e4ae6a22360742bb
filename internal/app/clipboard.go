package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	tea "github.com/charmbracelet/bubbletea"
)

// copiedMsg reports the outcome of a copy.
type copiedMsg struct {
	err error
}

// copyResetMsg clears the "copied" note unless a newer copy happened.
type copyResetMsg struct {
	seq int
}

var errNoAddress = errors.New("no active address")

func (m Model) copyAddress() tea.Cmd {
	address := m.address
	write := m.copy
	return func() tea.Msg {
		if address == "" {
			return copiedMsg{err: errNoAddress}
		}
		return copiedMsg{err: write(address)}
	}
}

// copyToClipboard uses the system clipboard and falls back to an OSC 52
// escape sequence, which also works over SSH.
func copyToClipboard(text string) error {
	err := clipboard.WriteAll(text)
	if err == nil {
		return nil
	}
	slog.Debug("system clipboard unavailable, using OSC 52", "err", err)

	if _, oscErr := osc52.New(text).WriteTo(os.Stderr); oscErr != nil {
		return fmt.Errorf("writing OSC 52 sequence: %w", errors.Join(err, oscErr))
	}
	return nil
}
