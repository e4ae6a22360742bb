package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/theme"
)

// SavedMsg reports the outcome of writing the settings file.
type SavedMsg struct {
	Config model.AppConfig
	Err    error
}

// DoneMsg signals the settings view closed without saving.
type DoneMsg struct{}

// fields holds the form values. It lives on the heap so huh's Value()
// pointers survive Bubble Tea model copies.
type fields struct {
	baseURL  string
	backend  string
	interval string
	cooldown string
	qrSize   string
}

// Model edits the persisted configuration with a huh form.
type Model struct {
	path   string
	cfg    model.AppConfig
	form   *huh.Form
	f      *fields
	width  int
	height int
}

// New creates a settings view writing to path.
func New(path string, width, height int) Model {
	return Model{
		path:   path,
		f:      &fields{},
		width:  width,
		height: height,
	}
}

// Open loads cfg into a fresh form.
func (m *Model) Open(cfg model.AppConfig) tea.Cmd {
	m.cfg = cfg
	*m.f = fields{
		baseURL:  cfg.Provider.BaseURL,
		backend:  cfg.Session.Backend,
		interval: strconv.Itoa(cfg.Polling.IntervalSec),
		cooldown: strconv.Itoa(cfg.Polling.CooldownSec),
		qrSize:   strconv.Itoa(cfg.QR.Size),
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Active reports whether the form is open.
func (m Model) Active() bool {
	return m.form != nil
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Provider URL").
				Description("Root of the mail.tm compatible API").
				Value(&m.f.baseURL).
				Validate(validateURL),
			huh.NewSelect[string]().
				Title("Session storage").
				Options(
					huh.NewOption("SQLite database", model.BackendSQLite),
					huh.NewOption("System keyring", model.BackendKeyring),
				).
				Value(&m.f.backend),
			huh.NewInput().
				Title("Poll interval (seconds)").
				Value(&m.f.interval).
				Validate(validatePositive("Poll interval")),
			huh.NewInput().
				Title("Rate limit cooldown (seconds)").
				Value(&m.f.cooldown).
				Validate(validatePositive("Cooldown")),
			huh.NewInput().
				Title("QR size (pixels)").
				Value(&m.f.qrSize).
				Validate(validatePositive("QR size")),
		),
	).WithShowHelp(false).WithWidth(m.formWidth()).WithKeyMap(escKeyMap())
}

// Update handles messages for the settings form.
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
		m.form = nil
		return m, m.save(m.apply())
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

// apply copies the validated form values onto the loaded config.
func (m Model) apply() model.AppConfig {
	cfg := m.cfg
	cfg.Provider.BaseURL = strings.TrimSpace(m.f.baseURL)
	cfg.Session.Backend = m.f.backend
	cfg.Polling.IntervalSec, _ = strconv.Atoi(strings.TrimSpace(m.f.interval))
	cfg.Polling.CooldownSec, _ = strconv.Atoi(strings.TrimSpace(m.f.cooldown))
	cfg.QR.Size, _ = strconv.Atoi(strings.TrimSpace(m.f.qrSize))
	return cfg
}

func (m Model) save(cfg model.AppConfig) tea.Cmd {
	path := m.path
	return func() tea.Msg {
		return SavedMsg{Config: cfg, Err: model.SaveConfig(path, &cfg)}
	}
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Settings")
	note := theme.HelpStyle.Render("Saved to " + m.path + ". Polling and storage changes apply on next start.")

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 20)).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.form.View(), note))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-8, 40), 100)
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("URL must include scheme and host (e.g., https://api.mail.tm)")
	}
	return nil
}

func validatePositive(field string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number", field)
		}
		return nil
	}
}

// escKeyMap lets esc abort the form.
func escKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc"))
	return km
}
