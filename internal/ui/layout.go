package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/theme"
)

// Layout manages the terminal layout dimensions: header, address bar,
// content and status bar stacked vertically.
type Layout struct {
	Width            int
	Height           int
	HeaderHeight     int
	AddressBarHeight int
	StatusBarHeight  int
}

// NewLayout creates a Layout with the given terminal dimensions.
// The header and status bar take one line each, the address bar three.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:            width,
		Height:           height,
		HeaderHeight:     1,
		AddressBarHeight: 3,
		StatusBarHeight:  1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.AddressBarHeight-l.StatusBarHeight, 1)
}

// RenderAddressBar renders the bordered address line. note is shown to
// the right of the address, e.g. a "copied" confirmation.
func (l Layout) RenderAddressBar(address, note string) string {
	line := theme.AddressStyle.Render(address)
	if note != "" {
		line += "  " + theme.HelpStyle.Render(note)
	}
	return theme.BorderStyle.
		Width(max(l.Width-2, 1)).
		Padding(0, 1).
		Render(line)
}

// RenderHeader renders the top header bar with a title and the poller
// status on the right.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, address bar, content area, and status bar. The content
// is padded to its full height so the status bar stays at the bottom.
func (l Layout) RenderWithFrame(
	header string,
	addressBar string,
	content string,
	statusBar string,
) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		addressBar,
		content,
		statusBar,
	)
}
