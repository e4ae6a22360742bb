package message

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/k3a/html2text"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// BackMsg signals the parent to navigate back to the inbox.
type BackMsg struct{}

// HeadersRequestMsg asks the parent to load the raw headers of a message.
type HeadersRequestMsg struct {
	ID string
}

// Model is the message detail view component.
type Model struct {
	msg         *model.MessageDetail
	headers     []model.Header
	showHeaders bool
	viewport    viewport.Model
	keys        *keys.KeyMap
	width       int
	height      int
}

// New creates a new message view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the message view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Headers):
			if m.msg == nil {
				return m, nil
			}
			m.showHeaders = !m.showHeaders
			m.refresh()
			if m.showHeaders && m.headers == nil {
				id := m.msg.ID
				return m, func() tea.Msg {
					return HeadersRequestMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the message view.
func (m Model) View() string {
	if m.msg == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No message selected")
	}

	return m.viewport.View()
}

// SetMessage replaces the displayed message and resets the header panel.
func (m *Model) SetMessage(detail *model.MessageDetail) {
	m.msg = detail
	m.headers = nil
	m.showHeaders = false
	m.refresh()
	m.viewport.GotoTop()
}

// SetHeaders attaches the raw headers of message id, if it is still shown.
func (m *Model) SetHeaders(id string, headers []model.Header) {
	if m.msg == nil || m.msg.ID != id {
		return
	}
	m.headers = headers
	m.refresh()
}

// Message returns the displayed message.
func (m Model) Message() *model.MessageDetail {
	return m.msg
}

// ShowingHeaders reports whether the header panel is open.
func (m Model) ShowingHeaders() bool {
	return m.showHeaders
}

// Clear drops the displayed message.
func (m *Model) Clear() {
	m.msg = nil
	m.headers = nil
	m.showHeaders = false
	m.viewport.SetContent("")
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderContent())
}

// renderContent builds the full message content string for the viewport.
func (m Model) renderContent() string {
	if m.msg == nil {
		return ""
	}

	msg := m.msg
	var sections []string

	subject := msg.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(subject), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	to := msg.To
	if to == "" {
		to = "Me"
	}
	sections = append(sections,
		fmt.Sprintf("%s  %s", metaStyle.Render("From:"), valStyle.Render(msg.From)),
		fmt.Sprintf("%s    %s", metaStyle.Render("To:"), valStyle.Render(to)),
	)
	if t := msg.Time(); !t.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"%s  %s",
			metaStyle.Render("Date:"),
			valStyle.Render(t.Local().Format("Mon, 02 Jan 2006 15:04")+" ("+humanize.Time(t)+")"),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))

	if m.showHeaders {
		sections = append(sections, "", separator, "")
		sections = append(sections, m.renderHeaders(metaStyle)...)
	}

	sections = append(sections, "", separator, "")
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(Body(msg)))

	if len(msg.Attachments) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorWhite).
			Render(fmt.Sprintf("Attachments (%d)", len(msg.Attachments))))
		for _, a := range msg.Attachments {
			sections = append(sections, fmt.Sprintf(
				"  %s  %s\n    %s",
				valStyle.Render(a.Filename),
				metaStyle.Render(humanize.Bytes(uint64(max(a.Size, 0)))),
				metaStyle.Render(a.DownloadURL),
			))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeaders(keyStyle lipgloss.Style) []string {
	if m.headers == nil {
		return []string{keyStyle.Italic(true).Render("Loading headers...")}
	}
	lines := make([]string, 0, len(m.headers))
	for _, h := range m.headers {
		lines = append(lines, keyStyle.Render(h.Key+":")+" "+h.Value)
	}
	return lines
}

// Body returns the terminal text of a message: the HTML body converted
// to text when present, otherwise the plain body.
func Body(msg *model.MessageDetail) string {
	if msg.HTMLBody != nil && strings.TrimSpace(*msg.HTMLBody) != "" {
		return strings.TrimSpace(html2text.HTML2TextWithOptions(
			*msg.HTMLBody,
			html2text.WithLinksInnerText(),
			html2text.WithListSupport(),
		))
	}
	if strings.TrimSpace(msg.Body) == "" {
		return lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No content")
	}
	return msg.Body
}
