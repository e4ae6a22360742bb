package help

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// Model is the help overlay: key bindings plus how the mailbox behaves.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	interval time.Duration
	cooldown time.Duration
	expires  time.Time
	width    int
	height   int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetPolling records the polling settings shown in the overlay.
func (m *Model) SetPolling(interval, cooldown time.Duration) {
	m.interval = interval
	m.cooldown = cooldown
}

// SetExpiry records when the active mailbox stops being restored.
// The zero time hides the line.
func (m *Model) SetExpiry(t time.Time) {
	m.expires = t
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	m.help.Width = m.width - 4

	about := []string{
		fmt.Sprintf("Addresses are kept for %s after creation.", model.SessionTTL),
	}
	if m.interval > 0 {
		about = append(about, fmt.Sprintf("The inbox is checked every %s.", m.interval))
	}
	if m.cooldown > 0 {
		about = append(about, fmt.Sprintf("When the provider rate limits, polling pauses for %s.", m.cooldown))
	}
	if !m.expires.IsZero() {
		about = append(about, "This address expires "+humanize.Time(m.expires)+".")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		"",
		titleStyle.Render("Mailbox"),
		theme.HelpStyle.Render(lipgloss.JoinVertical(lipgloss.Left, about...)),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
