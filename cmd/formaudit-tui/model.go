package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
)

type panel int
type uiMode int

const (
	clientsPanel panel = iota
	browsersPanel
	reportPanel
)

const (
	dashboardMode uiMode = iota
	settingsMode
	urlMode
)

type loadResultMsg struct {
	status   admin.Status
	clients  []session.ClientInfo
	browsers []admin.BrowserSession
	report   *report.Report
	err      error
	at       time.Time
}

type disconnectResultMsg struct {
	target string
	id     string
	err    error
}

type auditResultMsg struct {
	report report.Report
	err    error
}

type daemonActionMsg struct {
	action string
	cmd    *exec.Cmd
	err    error
}

type configSavedMsg struct {
	settings config.Settings
	err      error
}

type configReloadedMsg struct {
	settings config.Settings
	err      error
}

type tickMsg time.Time

type model struct {
	admin   Admin
	refresh time.Duration

	settings config.Settings
	form     settingsForm

	clients  []session.ClientInfo
	browsers []admin.BrowserSession
	report   *report.Report
	auditing bool

	mode           uiMode
	focus          panel
	clientCursor   int
	browserCursor  int
	settingsCursor int
	editingSetting bool

	editor   textinput.Model
	urlInput textinput.Model

	daemonCmd *exec.Cmd
	daemonLog string

	spin spinner.Model

	clientVP  viewport.Model
	browserVP viewport.Model
	reportVP  viewport.Model

	chartBrowsers streamlinechart.Model
	chartPassRate streamlinechart.Model

	spring harmonica.Spring
	animB  float64
	animP  float64
	velB   float64
	velP   float64

	status      string
	lastUpdated time.Time
	width       int
	height      int
}

func newModel(client Admin, cfg config.Settings) model {
	ed := textinput.New()
	ed.Prompt = "value> "
	ed.CharLimit = 512
	ed.Width = 64

	urlIn := textinput.New()
	urlIn.Prompt = "url> "
	urlIn.Placeholder = "https://shop.example/checkout"
	urlIn.CharLimit = 2048
	urlIn.Width = 64

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	bChart := streamlinechart.New(
		34,
		8,
		streamlinechart.WithYRange(0, 16),
		streamlinechart.WithStyles(runes.ArcLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("14"))),
	)
	pChart := streamlinechart.New(
		34,
		8,
		streamlinechart.WithYRange(0, 100),
		streamlinechart.WithStyles(runes.ArcLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("10"))),
	)

	refresh := cfg.TUIRefreshInterval
	if refresh <= 0 {
		refresh = 2 * time.Second
	}
	return model{
		admin:         client,
		refresh:       refresh,
		settings:      cfg,
		form:          formFromSettings(cfg),
		mode:          dashboardMode,
		focus:         browsersPanel,
		status:        "loading...",
		daemonLog:     filepath.Join(os.TempDir(), "formauditd.log"),
		spin:          sp,
		editor:        ed,
		urlInput:      urlIn,
		clientVP:      viewport.New(40, 20),
		browserVP:     viewport.New(40, 20),
		reportVP:      viewport.New(80, 12),
		chartBrowsers: bChart,
		chartPassRate: pChart,
		spring:        harmonica.NewSpring(harmonica.FPS(60), 12.0, 1.0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.admin), tickCmd(m.refresh), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncLayout()
		m.syncViewportContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case loadResultMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.applyLoad(msg)
		return m, nil

	case auditResultMsg:
		m.auditing = false
		if msg.err != nil {
			m.status = "audit failed: " + msg.err.Error()
			return m, nil
		}
		m.setReport(&msg.report)
		s := msg.report.Summary()
		m.status = fmt.Sprintf("audited %s: %d passed, %d partial, %d failed", emptyDefault(msg.report.URL, "(no url)"), s.Passed, s.Partial, s.Failed)
		m.syncViewportContent()
		return m, nil

	case disconnectResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("disconnect %s %s failed: %v", msg.target, shortID(msg.id), msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("disconnected %s %s", msg.target, shortID(msg.id))
		return m, fetchCmd(m.admin)

	case daemonActionMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s formauditd failed: %v", msg.action, msg.err)
			return m, nil
		}
		switch msg.action {
		case "start":
			m.daemonCmd = msg.cmd
		case "stop":
			m.daemonCmd = nil
		}
		m.status = msg.action + " formauditd ok"
		return m, fetchCmd(m.admin)

	case configReloadedMsg:
		if msg.err != nil {
			m.status = "config reload failed: " + msg.err.Error()
			return m, nil
		}
		m.applySettings(msg.settings)
		m.status = "settings reloaded"
		return m, fetchCmd(m.admin)

	case configSavedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
			return m, nil
		}
		m.applySettings(msg.settings)
		m.status = "settings saved"
		return m, fetchCmd(m.admin)

	case tickMsg:
		if !procAlive(m.daemonCmd) {
			m.daemonCmd = nil
		}
		m.animB, m.velB = m.spring.Update(m.animB, m.velB, float64(len(m.browsers)))
		m.animP, m.velP = m.spring.Update(m.animP, m.velP, passRate(m.report))
		return m, tea.Batch(fetchCmd(m.admin), tickCmd(m.refresh))

	case tea.MouseMsg:
		if m.mode == dashboardMode && msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			return m.handleClick(msg)
		}

	case tea.KeyMsg:
		switch m.mode {
		case settingsMode:
			return updateSettingsMode(m, msg)
		case urlMode:
			return updateURLMode(m, msg)
		}
		return updateDashboard(m, msg)
	}

	return m, nil
}

func (m *model) applyLoad(msg loadResultMsg) {
	m.clients = msg.clients
	m.browsers = msg.browsers
	slices.SortFunc(m.browsers, func(a, b admin.BrowserSession) int { return a.ConnectedAt.Compare(b.ConnectedAt) })
	if m.clientCursor >= len(m.clients) {
		m.clientCursor = max(0, len(m.clients)-1)
	}
	if m.browserCursor >= len(m.browsers) {
		m.browserCursor = max(0, len(m.browsers)-1)
	}
	if msg.report != nil {
		m.setReport(msg.report)
	}
	m.lastUpdated = msg.at
	m.chartBrowsers.Push(float64(len(m.browsers)))
	m.chartBrowsers.Draw()
	m.syncViewportContent()
	if !m.auditing {
		m.status = fmt.Sprintf("clients=%d browser_sessions=%d snapshots=%d", len(m.clients), len(m.browsers), msg.status.Snapshots)
	}
}

// setReport records a report and extends the pass-rate trend when the
// snapshot is new.
func (m *model) setReport(rep *report.Report) {
	if m.report != nil && m.report.SnapshotID == rep.SnapshotID && m.report.AuditedAt.Equal(rep.AuditedAt) {
		return
	}
	m.report = rep
	m.chartPassRate.Push(passRate(rep))
	m.chartPassRate.Draw()
}

func (m *model) applySettings(s config.Settings) {
	m.settings = s
	m.form = formFromSettings(s)
	if s.TUIRefreshInterval > 0 {
		m.refresh = s.TUIRefreshInterval
	}
	m.admin = newAdminClient(s)
}

func (m model) handleClick(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	for i, c := range m.clients {
		if z := zone.Get("client-" + c.ID); z != nil && z.InBounds(msg) {
			m.focus = clientsPanel
			m.clientCursor = i
			m.syncViewportContent()
			return m, nil
		}
	}
	for i, b := range m.browsers {
		if z := zone.Get("browser-" + b.ID); z != nil && z.InBounds(msg) {
			m.focus = browsersPanel
			m.browserCursor = i
			m.syncViewportContent()
			return m, nil
		}
	}
	if z := zone.Get("audit-button"); z != nil && z.InBounds(msg) {
		return m.startAudit("")
	}
	return m, nil
}

func updateDashboard(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "c":
		m.mode = settingsMode
		m.editingSetting = false
		m.editor.Blur()
		m.status = "settings mode"
		return m, nil
	case "tab":
		m.focus = (m.focus + 1) % 3
		m.syncViewportContent()
		return m, nil
	case "r":
		return m, fetchCmd(m.admin)
	case "a":
		return m.startAudit("")
	case "u":
		m.mode = urlMode
		m.urlInput.SetValue("")
		m.status = "enter a url to load and audit"
		cmd := m.urlInput.Focus()
		return m, cmd
	case "up", "k":
		switch m.focus {
		case clientsPanel:
			if m.clientCursor > 0 {
				m.clientCursor--
			}
		case browsersPanel:
			if m.browserCursor > 0 {
				m.browserCursor--
			}
		case reportPanel:
			m.reportVP.LineUp(1)
			return m, nil
		}
		m.syncViewportContent()
		return m, nil
	case "down", "j":
		switch m.focus {
		case clientsPanel:
			if m.clientCursor < len(m.clients)-1 {
				m.clientCursor++
			}
		case browsersPanel:
			if m.browserCursor < len(m.browsers)-1 {
				m.browserCursor++
			}
		case reportPanel:
			m.reportVP.LineDown(1)
			return m, nil
		}
		m.syncViewportContent()
		return m, nil
	case "pgup":
		m.focusedViewport().HalfViewUp()
		return m, nil
	case "pgdown":
		m.focusedViewport().HalfViewDown()
		return m, nil
	case "d":
		if m.focus == clientsPanel && len(m.clients) > 0 {
			return m, disconnectClientCmd(m.admin, m.clients[m.clientCursor].ID)
		}
		if m.focus == browsersPanel && len(m.browsers) > 0 {
			return m, disconnectBrowserCmd(m.admin, m.browsers[m.browserCursor].ID)
		}
		return m, nil
	case "s":
		if procAlive(m.daemonCmd) {
			m.status = "formauditd is already running"
			return m, nil
		}
		return m, startDaemonCmd(m.settings.Path, m.daemonLog)
	case "x":
		return m, stopDaemonCmd(m.daemonCmd)
	}
	return m, nil
}

func updateURLMode(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = dashboardMode
		m.urlInput.Blur()
		m.status = "audit canceled"
		return m, nil
	case "enter":
		url := strings.TrimSpace(m.urlInput.Value())
		m.mode = dashboardMode
		m.urlInput.Blur()
		if url == "" {
			m.status = "no url given"
			return m, nil
		}
		return m.startAudit(url)
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

// startAudit audits the selected browser session, or the active one when
// nothing is selected.
func (m model) startAudit(url string) (tea.Model, tea.Cmd) {
	if m.auditing {
		m.status = "an audit is already running"
		return m, nil
	}
	req := admin.AuditRequest{URL: url}
	if len(m.browsers) > 0 {
		req.SessionID = m.browsers[m.browserCursor].ID
	}
	m.auditing = true
	m.status = "auditing " + emptyDefault(url, "current tab") + "..."
	return m, auditCmd(m.admin, req, m.settings.Gather.Timeout)
}

func (m *model) focusedViewport() *viewport.Model {
	switch m.focus {
	case clientsPanel:
		return &m.clientVP
	case reportPanel:
		return &m.reportVP
	default:
		return &m.browserVP
	}
}

func (m *model) syncLayout() {
	paneH := max(6, m.height-34)
	paneW := max(40, m.width/2-2)
	m.clientVP.Width = paneW - 2
	m.clientVP.Height = paneH
	m.browserVP.Width = paneW - 2
	m.browserVP.Height = paneH
	m.reportVP.Width = max(60, m.width-4)
	m.reportVP.Height = 12
}

func (m *model) syncViewportContent() {
	m.clientVP.SetContent(m.renderClientsRows())
	m.browserVP.SetContent(m.renderBrowserRows())
	m.reportVP.SetContent(m.renderReport())
	m.ensureCursorVisible()
}

func (m *model) ensureCursorVisible() {
	switch m.focus {
	case clientsPanel:
		m.clientVP.GotoTop()
		m.clientVP.LineDown(2 * m.clientCursor)
	case browsersPanel:
		m.browserVP.GotoTop()
		lines := 0
		for _, b := range m.browsers[:m.browserCursor] {
			lines += browserRowLines(b)
		}
		m.browserVP.LineDown(lines)
	}
}

// passRate is the share of applicable audits that fully passed, in percent.
func passRate(rep *report.Report) float64 {
	if rep == nil {
		return 0
	}
	s := rep.Summary()
	applicable := s.Passed + s.Partial + s.Failed + s.Errored
	if applicable == 0 {
		return 0
	}
	return 100 * float64(s.Passed) / float64(applicable)
}
