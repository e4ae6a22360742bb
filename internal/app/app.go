package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/nhle/tempmail/internal/keys"
	"github.com/nhle/tempmail/internal/mailbox"
	"github.com/nhle/tempmail/internal/mailtm"
	"github.com/nhle/tempmail/internal/model"
	appsync "github.com/nhle/tempmail/internal/sync"
	"github.com/nhle/tempmail/internal/theme"
	"github.com/nhle/tempmail/internal/ui"
	"github.com/nhle/tempmail/internal/ui/command"
	configview "github.com/nhle/tempmail/internal/ui/config"
	"github.com/nhle/tempmail/internal/ui/confirm"
	helpview "github.com/nhle/tempmail/internal/ui/help"
	"github.com/nhle/tempmail/internal/ui/inbox"
	"github.com/nhle/tempmail/internal/ui/message"
	"github.com/nhle/tempmail/internal/ui/qr"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewMessage
	ViewHelp
	ViewCommand
	ViewConfirm
	ViewQR
	ViewSettings
)

// Phase is the mailbox lifecycle state.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseProvisioning
	PhaseActive
	PhaseBackoff
)

func (p Phase) String() string {
	switch p {
	case PhaseProvisioning:
		return "provisioning"
	case PhaseActive:
		return "polling"
	case PhaseBackoff:
		return "paused"
	default:
		return "no mailbox"
	}
}

// copiedNoteTTL is how long the "copied" note stays in the address bar.
const copiedNoteTTL = 2 * time.Second

// deleteAction tags the delete-address confirmation.
const deleteAction = "delete"

// Model is the root Bubble Tea model. It owns the mailbox lifecycle,
// routes input between views and drives the poller.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool

	svc    *mailbox.Service
	poller *appsync.Poller
	cfg    model.AppConfig
	keys   *keys.KeyMap
	copy   func(string) error

	inboxView   inbox.Model
	messageView message.Model
	helpView    helpview.Model
	commandView command.Model
	confirmView confirm.Model
	qrView      qr.Model
	configView  configview.Model
	spinner     spinner.Model

	initialized bool
	active      bool
	paused      bool
	loading     bool
	refreshing  bool

	// epoch tags every request issued for the current address. Results
	// carrying an older epoch are dropped on arrival.
	epoch   uint64
	address string

	// cancelProvision aborts the in-flight provisioning, if any.
	cancelProvision context.CancelFunc

	listHash  uint64
	hasList   bool
	known     map[string]bool
	newIDs    map[string]bool
	unread    int
	lastPoll  time.Time
	pendingID string

	copyNote string
	copySeq  int
	errMsg   string
}

// Option customizes the root model.
type Option func(*Model)

// WithClipboard replaces the clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copy = fn }
}

// WithConfigPath sets the file the settings view writes to.
func WithConfigPath(path string) Option {
	return func(m *Model) { m.configView = configview.New(path, 80, 20) }
}

// New creates the root model around the mail client.
func New(svc *mailbox.Service, cfg model.AppConfig, opts ...Option) Model {
	k := keys.DefaultKeyMap()

	p := appsync.New(svc.ListMessages,
		appsync.WithInterval(cfg.PollInterval()),
		appsync.WithBackoff(appsync.FlatBackoff(cfg.Cooldown(), mailtm.IsRateLimited)),
	)

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		currentView: ViewInbox,
		svc:         svc,
		poller:      p,
		cfg:         cfg,
		keys:        k,
		copy:        copyToClipboard,
		inboxView:   inbox.New(k, 80, 20),
		messageView: message.New(k, 80, 20),
		helpView:    helpview.New(k, 80, 20),
		commandView: command.New(80, 20),
		confirmView: confirm.New(80, 20),
		qrView:      qr.New(cfg.QR, 80, 20),
		configView:  configview.New(model.DefaultConfigPath(), 80, 20),
		spinner:     sp,
		known:       map[string]bool{},
		newIDs:      map[string]bool{},
	}
	m.helpView.SetPolling(cfg.PollInterval(), cfg.Cooldown())
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Close stops background polling.
func (m Model) Close() {
	if m.cancelProvision != nil {
		m.cancelProvision()
	}
	m.poller.Stop()
}

// Phase returns the current lifecycle state.
func (m Model) Phase() Phase {
	switch {
	case m.active && m.paused:
		return PhaseBackoff
	case m.active:
		return PhaseActive
	case m.loading:
		return PhaseProvisioning
	default:
		return PhaseUninitialized
	}
}

// Init restores or provisions the mailbox and subscribes to poll results.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return initMsg{} },
		m.poller.WaitForNextResult(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inboxView.SetSize(w, h)
		m.messageView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.confirmView.SetSize(w, h)
		m.qrView.SetSize(w, h)
		m.configView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case initMsg:
		if m.initialized {
			slog.Debug("ignoring repeated init")
			return m, nil
		}
		m.initialized = true
		m.loading = true
		return m, tea.Batch(m.restoreSession(m.epoch), m.spinner.Tick)

	case restoredMsg:
		if msg.epoch != m.epoch {
			return m, nil
		}
		if msg.ok {
			m.loading = false
			m.enterActive(msg.address)
			return m, nil
		}
		cmd := m.provision()
		return m, cmd

	case provisionedMsg:
		if msg.epoch != m.epoch {
			slog.Debug("discarding stale provisioning result", "epoch", msg.epoch, "current", m.epoch)
			return m, nil
		}
		m.stopProvisioning()
		m.loading = false
		if msg.err != nil {
			slog.Error("provisioning mailbox", "err", msg.err)
			m.errMsg = "Could not create a mailbox: " + msg.err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.enterActive(msg.address)
		return m, nil

	case appsync.ResultMsg:
		wait := m.poller.WaitForNextResult()
		if msg.Epoch != m.epoch || !m.active {
			slog.Debug("discarding stale inbox result", "epoch", msg.Epoch, "current", m.epoch)
			return m, wait
		}
		cmd := m.handlePoll(msg)
		return m, tea.Batch(wait, cmd)

	case inbox.SelectedMessageMsg:
		if !m.active {
			return m, nil
		}
		m.pendingID = msg.ID
		return m, m.fetchMessage(m.epoch, msg.ID)

	case detailLoadedMsg:
		if msg.epoch != m.epoch || msg.id != m.pendingID {
			return m, nil
		}
		m.pendingID = ""
		if msg.err != nil {
			slog.Error("fetching message", "id", msg.id, "err", msg.err)
			m.errMsg = "Could not open message: " + msg.err.Error()
			return m, nil
		}
		detail := msg.detail
		if detail.Date == "" {
			if s, ok := m.inboxView.Summary(msg.id); ok {
				detail.Date = s.Date
			}
		}
		delete(m.newIDs, msg.id)
		m.errMsg = ""
		m.messageView.SetMessage(detail)
		m.currentView = ViewMessage
		return m, nil

	case message.HeadersRequestMsg:
		return m, m.fetchHeaders(m.epoch, msg.ID)

	case headersLoadedMsg:
		if msg.epoch != m.epoch {
			return m, nil
		}
		if msg.err != nil {
			slog.Error("fetching headers", "id", msg.id, "err", msg.err)
			m.errMsg = "Could not load headers: " + msg.err.Error()
			m.messageView.SetHeaders(msg.id, []model.Header{})
			return m, nil
		}
		m.messageView.SetHeaders(msg.id, msg.headers)
		return m, nil

	case message.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			slog.Error("copying address", "err", msg.err)
			m.errMsg = "Could not copy address: " + msg.err.Error()
			return m, nil
		}
		m.copySeq++
		m.copyNote = "Copied!"
		seq := m.copySeq
		return m, tea.Tick(copiedNoteTTL, func(time.Time) tea.Msg {
			return copyResetMsg{seq: seq}
		})

	case copyResetMsg:
		if msg.seq == m.copySeq {
			m.copyNote = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case confirm.ResultMsg:
		m.currentView = m.previousView
		if msg.Action == deleteAction && msg.Confirmed {
			cmd := m.regenerate()
			return m, cmd
		}
		return m, nil

	case configview.SavedMsg:
		m.currentView = m.previousView
		if msg.Err != nil {
			slog.Error("saving settings", "err", msg.Err)
			m.errMsg = "Could not save settings: " + msg.Err.Error()
			return m, nil
		}
		m.cfg = msg.Config
		m.qrView.SetConfig(msg.Config.QR)
		m.errMsg = ""
		slog.Info("settings saved")
		return m, nil

	case configview.DoneMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.poller.Stop()
			return m, tea.Quit
		}

		// Text inputs own the keyboard while open.
		if m.currentView == ViewCommand || m.currentView == ViewConfirm || m.currentView == ViewSettings {
			return m.updateActiveView(msg)
		}

		if next, cmd, handled := m.handleGlobalKey(msg); handled {
			return next, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work across the inbox, message,
// help and QR views.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit) && m.currentView == ViewInbox:
		m.poller.Stop()
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.openOverlay(ViewHelp)
		return m, nil, true

	case key.Matches(msg, m.keys.QR):
		if m.currentView == ViewQR {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.openOverlay(ViewQR)
		return m, nil, true

	case key.Matches(msg, m.keys.Back) && (m.currentView == ViewHelp || m.currentView == ViewQR):
		m.currentView = m.previousView
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.openOverlay(ViewCommand)
		cmd := m.commandView.Focus()
		return m, cmd, true

	case key.Matches(msg, m.keys.Settings):
		cmd := m.openSettings()
		return m, cmd, true

	case key.Matches(msg, m.keys.Copy):
		return m, m.copyAddress(), true

	case key.Matches(msg, m.keys.Refresh):
		cmd := m.refresh()
		return m, cmd, true

	case key.Matches(msg, m.keys.Change):
		cmd := m.regenerate()
		return m, cmd, true

	case key.Matches(msg, m.keys.Delete):
		cmd := m.askDelete()
		return m, cmd, true
	}

	return m, nil, false
}

// openOverlay switches to v, remembering the view to return to.
func (m *Model) openOverlay(v ViewState) {
	if m.currentView == ViewInbox || m.currentView == ViewMessage {
		m.previousView = m.currentView
	}
	m.currentView = v
}

// enterActive makes address the active mailbox and starts polling it.
func (m *Model) enterActive(address string) {
	m.active = true
	m.paused = false
	m.address = address
	m.qrView.SetAddress(address)
	if left := m.svc.Remaining(); left > 0 {
		m.helpView.SetExpiry(time.Now().Add(left))
	}
	m.refreshing = true
	m.poller.Start(m.epoch)
	slog.Info("mailbox active", "address", address, "epoch", m.epoch)
}

// regenerate drops the current mailbox and provisions a new one.
func (m *Model) regenerate() tea.Cmd {
	m.stopProvisioning()
	m.poller.Stop()
	m.epoch++

	m.active = false
	m.paused = false
	m.refreshing = false
	m.address = ""
	m.qrView.SetAddress("")
	m.helpView.SetExpiry(time.Time{})
	m.pendingID = ""
	m.errMsg = ""
	m.copyNote = ""
	m.resetMessages()
	m.currentView = ViewInbox
	m.previousView = ViewInbox

	return tea.Batch(m.provision(), m.spinner.Tick)
}

// provision marks the model loading and returns the provisioning command.
func (m *Model) provision() tea.Cmd {
	m.stopProvisioning()
	m.loading = true
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	m.cancelProvision = cancel
	return m.provisionAccount(ctx, m.epoch)
}

// stopProvisioning cancels the in-flight provisioning run.
func (m *Model) stopProvisioning() {
	if m.cancelProvision != nil {
		m.cancelProvision()
		m.cancelProvision = nil
	}
}

func (m *Model) resetMessages() {
	m.inboxView.Clear()
	m.messageView.Clear()
	m.listHash = 0
	m.hasList = false
	m.known = map[string]bool{}
	m.newIDs = map[string]bool{}
	m.unread = 0
	m.lastPoll = time.Time{}
}

// refresh requests an out-of-band poll.
func (m *Model) refresh() tea.Cmd {
	if !m.active {
		return nil
	}
	if m.poller.Refresh() {
		m.refreshing = true
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) openSettings() tea.Cmd {
	m.openOverlay(ViewSettings)
	return m.configView.Open(m.cfg)
}

func (m *Model) askDelete() tea.Cmd {
	if !m.active {
		return nil
	}
	m.openOverlay(ViewConfirm)
	return m.confirmView.Ask(
		deleteAction,
		"Delete "+m.address+"?",
		"The mailbox and its messages are discarded and a new address is created.",
	)
}

// handlePoll applies a poll result for the current epoch.
func (m *Model) handlePoll(msg appsync.ResultMsg) tea.Cmd {
	m.refreshing = false
	m.paused = msg.Backoff > 0 || (msg.Manual && m.paused)

	if msg.Err != nil {
		if msg.Backoff > 0 {
			m.errMsg = fmt.Sprintf("Rate limited by the provider, polling resumes in %s", msg.Backoff)
		} else {
			m.errMsg = "Refresh failed: " + msg.Err.Error()
		}
		return nil
	}

	m.lastPoll = msg.At
	if !m.paused {
		m.errMsg = ""
	}
	return m.applyMessages(msg.Messages)
}

// applyMessages replaces the inbox unless the list is unchanged.
func (m *Model) applyMessages(msgs []model.MessageSummary) tea.Cmd {
	h, err := hashstructure.Hash(msgs, hashstructure.FormatV2, nil)
	if err != nil {
		slog.Warn("hashing message list", "err", err)
	} else if m.hasList && h == m.listHash {
		return nil
	}

	current := make(map[string]bool, len(msgs))
	unread := 0
	for _, s := range msgs {
		current[s.ID] = true
		if !s.Seen {
			unread++
		}
		if m.hasList && !m.known[s.ID] {
			m.newIDs[s.ID] = true
		}
	}
	for id := range m.newIDs {
		if !current[id] {
			delete(m.newIDs, id)
		}
	}

	m.known = current
	m.listHash = h
	m.hasList = err == nil
	m.unread = unread

	return m.inboxView.SetMessages(msgs, m.newIDs)
}

func (m Model) busy() bool {
	return m.loading || m.refreshing
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inboxView, cmd = m.inboxView.Update(msg)
	case ViewMessage:
		m.messageView, cmd = m.messageView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	case ViewSettings:
		m.configView, cmd = m.configView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.title(), m.status())
	addressBar := m.layout.RenderAddressBar(m.addressLine(), m.copyNote)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, addressBar, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewMessage:
		return m.messageView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewConfirm:
		return m.confirmView.View()
	case ViewQR:
		return m.qrView.View()
	case ViewSettings:
		return m.configView.View()
	default:
		return m.inboxView.View()
	}
}

func (m Model) title() string {
	title := "TempMail"
	if n := len(m.newIDs); n > 0 {
		title += fmt.Sprintf(" [%d new]", n)
	}
	if m.unread > 0 {
		title += fmt.Sprintf(" (%d unread)", m.unread)
	}
	return title
}

// status returns a short string describing the mailbox state.
func (m Model) status() string {
	phase := m.Phase()
	label := theme.PollStateStyle(phase.String()).Render(phase.String())

	switch {
	case m.busy():
		return m.spinner.View() + " " + label
	case phase == PhaseActive && !m.lastPoll.IsZero():
		return label + " checked " + humanize.Time(m.lastPoll)
	default:
		return label
	}
}

func (m Model) addressLine() string {
	switch {
	case m.address != "":
		return m.address
	case m.loading:
		return "Generating address..."
	default:
		return "No address. Press n to create one."
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.errMsg != "" && (m.currentView == ViewInbox || m.currentView == ViewMessage) {
		return theme.ErrorStyle.Render(m.errMsg)
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewConfirm:
		return "←/→ choose | enter confirm | esc cancel"
	case ViewQR:
		return "s close | esc back"
	case ViewSettings:
		return "tab next field | enter save | esc cancel"
	case ViewMessage:
		return "esc back | h headers | j/k scroll | c copy | q quit from inbox"
	default:
		return "enter open | c copy | r refresh | n new | d delete | s qr | ? help | q quit"
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case command.Refresh:
		return m.refresh()
	case command.Copy:
		return m.copyAddress()
	case command.NewAddress:
		return m.regenerate()
	case command.Delete:
		return m.askDelete()
	case command.QR:
		m.openOverlay(ViewQR)
		return nil
	case command.Help:
		m.openOverlay(ViewHelp)
		return nil
	case command.Config:
		return m.openSettings()
	case command.Quit:
		m.poller.Stop()
		return tea.Quit
	default:
		return nil
	}
}
