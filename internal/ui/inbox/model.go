package inbox

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	ID string
}

// Model is the inbox list view. It holds no data of its own: the
// controller pushes every poll result with SetMessages.
type Model struct {
	list   list.Model
	keys   *keys.KeyMap
	width  int
	height int
}

// New creates an empty inbox view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("message", "messages")
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetMessages replaces the list contents, keeping the cursor on the
// same message when it is still present. ids in fresh are marked new.
func (m *Model) SetMessages(msgs []model.MessageSummary, fresh map[string]bool) tea.Cmd {
	selected := m.SelectedID()

	items := make([]list.Item, len(msgs))
	cursor := 0
	for i, s := range msgs {
		items[i] = MessageItem{Summary: s, New: fresh[s.ID]}
		if s.ID == selected {
			cursor = i
		}
	}

	cmd := m.list.SetItems(items)
	m.list.Select(cursor)
	return cmd
}

// Clear empties the list.
func (m *Model) Clear() {
	m.list.SetItems(nil)
	m.list.ResetSelected()
}

// Len returns the number of listed messages.
func (m Model) Len() int {
	return len(m.list.Items())
}

// SelectedID returns the id under the cursor, or "".
func (m Model) SelectedID() string {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return ""
	}
	return item.Summary.ID
}

// Summary returns the listed summary with the given id.
func (m Model) Summary(id string) (model.MessageSummary, bool) {
	for _, it := range m.list.Items() {
		if mi, ok := it.(MessageItem); ok && mi.Summary.ID == id {
			return mi.Summary, true
		}
	}
	return model.MessageSummary{}, false
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Select) {
		id := m.SelectedID()
		if id == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			return SelectedMessageMsg{ID: id}
		}
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the inbox view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows a waiting hint while the inbox is empty.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	return style.Render(
		"Your inbox is empty\n\n" +
			"Waiting for incoming emails...",
	)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
