package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// senderWidth is the fixed column width of the sender name.
const senderWidth = 20

// noSubject is shown for messages without a subject.
const noSubject = "(No Subject)"

// MessageItem wraps a model.MessageSummary so it can be used in a bubbles/list.
type MessageItem struct {
	Summary model.MessageSummary
	New     bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Summary.Subject }

// Title returns the subject, or a placeholder when there is none.
func (i MessageItem) Title() string {
	if i.Summary.Subject == "" {
		return noSubject
	}
	return i.Summary.Subject
}

// Description returns the preview text.
func (i MessageItem) Description() string { return i.Summary.Intro }

// ItemDelegate implements list.ItemDelegate for inbox rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a message row: marker, sender, subject and age on the
// first line, the preview on the second.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	isSelected := index == m.Index()

	marker := " "
	switch {
	case mi.New:
		marker = lipgloss.NewStyle().Foreground(theme.ColorYellow).Render("★")
	case !mi.Summary.Seen:
		marker = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	sender := senderColumn(mi.Summary.SenderName())

	subjectWidth := m.Width() - senderWidth - 20
	if subjectWidth < 10 {
		subjectWidth = 10
	}
	subject := runewidth.Truncate(mi.Title(), subjectWidth, "…")
	if !mi.Summary.Seen {
		subject = theme.UnreadStyle.Render(subject)
	}

	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(d.relativeTime(mi.Summary.Time()))

	intro := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(runewidth.Truncate(mi.Summary.Intro, max(m.Width()-6, 10), "…"))

	line := fmt.Sprintf("%s %s %s  %s\n  %s", marker, sender, subject, age, intro)

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// senderColumn fits name into the fixed sender column, measured in
// terminal cells.
func senderColumn(name string) string {
	return runewidth.FillRight(runewidth.Truncate(name, senderWidth, "…"), senderWidth)
}

// relativeTime returns a human-friendly relative time string.
func (d ItemDelegate) relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if d.now != nil {
		now = d.now()
	}
	if now.Sub(t) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
