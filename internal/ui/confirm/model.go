package confirm

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/theme"
)

// ResultMsg is dispatched once the dialog is answered or aborted.
type ResultMsg struct {
	// Action is the value passed to Ask.
	Action    string
	Confirmed bool
}

// binding keeps the answer on the heap so that huh's Value() pointer
// stays valid across Bubble Tea model copies.
type binding struct {
	confirmed bool
}

// Model is a yes/no dialog built on huh.
type Model struct {
	form   *huh.Form
	b      *binding
	action string
	width  int
	height int
}

// New creates an idle confirmation dialog.
func New(width, height int) Model {
	return Model{
		b:      &binding{},
		width:  width,
		height: height,
	}
}

// Ask opens the dialog for action with the given question.
func (m *Model) Ask(action, title, description string) tea.Cmd {
	m.action = action
	m.b.confirmed = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&m.b.confirmed),
		),
	).WithShowHelp(false).WithWidth(max(m.width-8, 20)).WithKeyMap(escKeyMap())
	return m.form.Init()
}

// Active reports whether a question is open.
func (m Model) Active() bool {
	return m.form != nil
}

// Update handles messages for the dialog.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		res := ResultMsg{Action: m.action, Confirmed: m.b.confirmed}
		m.form = nil
		return m, func() tea.Msg { return res }
	case huh.StateAborted:
		res := ResultMsg{Action: m.action}
		m.form = nil
		return m, func() tea.Msg { return res }
	}

	return m, cmd
}

// View renders the dialog.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 20)).
		Render(lipgloss.NewStyle().Padding(0, 1).Render(m.form.View()))
}

// SetSize updates the dialog dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// escKeyMap lets esc abort the form.
func escKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc"))
	return km
}
