package qr

import (
	"fmt"
	"net/url"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// URL builds the image URL rendering address as a QR code.
func URL(cfg model.QRConfig, address string) string {
	size := cfg.Size
	if size <= 0 {
		size = 250
	}

	q := url.Values{}
	q.Set("size", fmt.Sprintf("%dx%d", size, size))
	q.Set("data", address)
	q.Set("bgcolor", "111")
	q.Set("color", "fff")
	q.Set("margin", "10")

	return cfg.BaseURL + "?" + q.Encode()
}

// Model is the QR panel. It only shows the link to the rendered image.
type Model struct {
	cfg     model.QRConfig
	address string
	width   int
	height  int
}

// New creates a QR panel for the given service settings.
func New(cfg model.QRConfig, width, height int) Model {
	return Model{cfg: cfg, width: width, height: height}
}

// SetConfig replaces the image service settings.
func (m *Model) SetConfig(cfg model.QRConfig) {
	m.cfg = cfg
}

// SetAddress sets the address the panel encodes.
func (m *Model) SetAddress(address string) {
	m.address = address
}

// View renders the QR panel.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	if m.address == "" {
		return theme.DetailPanelStyle.
			Width(max(m.width-4, 20)).
			Render(titleStyle.Render("Scan to copy") + "\n" +
				theme.HelpStyle.Render("No active address"))
	}

	link := lipgloss.NewStyle().
		Foreground(theme.ColorBlue).
		Underline(true).
		Width(max(m.width-8, 20)).
		Render(URL(m.cfg, m.address))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Scan to copy"),
		theme.AddressStyle.Render(m.address),
		"",
		"Open this link to display the QR code:",
		link,
		"",
		theme.HelpStyle.Render("s or esc to close"),
	)

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
