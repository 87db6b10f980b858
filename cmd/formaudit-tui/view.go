package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/report"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	normalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	activeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m model) renderClientsRows() string {
	if len(m.clients) == 0 {
		return normalStyle.Render("(none)")
	}
	lines := make([]string, 0, len(m.clients)*2)
	for i, c := range m.clients {
		pref := "  "
		if i == m.clientCursor {
			pref = "> "
		}
		row := fmt.Sprintf("%s%s  %s  %s", pref, shortID(c.ID), emptyDefault(c.Name, "unnamed"), c.Transport)
		if i == m.clientCursor {
			row = cursorStyle.Render(row)
		}
		lines = append(lines, zone.Mark("client-"+c.ID, row))
		lines = append(lines, fmt.Sprintf("    %s  seen %s", c.RemoteAddr, timeAgo(c.LastSeen)))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderBrowserRows() string {
	if len(m.browsers) == 0 {
		return normalStyle.Render("(none) open the extension to connect a browser")
	}
	lines := make([]string, 0, len(m.browsers)*3)
	for i, s := range m.browsers {
		pref := "  "
		if i == m.browserCursor {
			pref = "> "
		}
		act := ""
		if s.Active {
			act = " " + activeStyle.Render("ACTIVE")
		}
		row := fmt.Sprintf("%s%s tabs=%d%s", pref, shortID(s.ID), len(s.Tabs), act)
		if i == m.browserCursor {
			row = cursorStyle.Render(row)
		}
		lines = append(lines, zone.Mark("browser-"+s.ID, row))
		lines = append(lines, fmt.Sprintf("    %s  seen %s", s.RemoteAddr, timeAgo(s.LastSeen)))
		if s.TabsError != "" {
			lines = append(lines, "    "+warnStyle.Render("tabs error: "+s.TabsError))
			continue
		}
		for _, tab := range s.Tabs {
			title := strings.TrimSpace(tab.Title)
			if title == "" {
				title = tab.URL
			}
			mark := "-"
			if tab.Active {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("    %s [%d] %s", mark, tab.ID, trimText(title, 70)))
		}
	}
	return strings.Join(lines, "\n")
}

// browserRowLines is the number of lines renderBrowserRows spends on s.
func browserRowLines(s admin.BrowserSession) int {
	if s.TabsError != "" {
		return 3
	}
	return 2 + len(s.Tabs)
}

func (m model) renderReport() string {
	if m.report == nil {
		return normalStyle.Render("no audit yet: press a to audit the selected session, u to audit a url")
	}
	header := normalStyle.Render(fmt.Sprintf("snapshot %s  audited %s", shortID(m.report.SnapshotID), timeAgo(m.report.AuditedAt)))
	return header + "\n" + report.RenderText(lipgloss.DefaultRenderer(), *m.report)
}

func (m model) View() string {
	if m.mode == settingsMode {
		return zone.Scan(m.settingsView())
	}

	paneTitle := func(name string, p panel) string {
		if m.focus == p {
			return focusStyle.Render(name)
		}
		return normalStyle.Render(name)
	}
	paneW := max(40, m.width/2-2)
	leftPane := boxStyle.Width(paneW).Render(paneTitle("MCP Clients", clientsPanel) + "\n" + m.clientVP.View())
	rightPane := boxStyle.Width(paneW).Render(paneTitle("Browser Sessions", browsersPanel) + "\n" + m.browserVP.View())

	auditLabel := "[ audit ]"
	if m.auditing {
		auditLabel = "[ " + m.spin.View() + " auditing ]"
	}
	reportPane := boxStyle.Width(max(80, m.width-2)).Render(
		paneTitle("Latest Report", reportPanel) + "  " + zone.Mark("audit-button", focusStyle.Render(auditLabel)) + "\n" + m.reportVP.View(),
	)

	cards := lipgloss.JoinHorizontal(
		lipgloss.Top,
		boxStyle.Render(fmt.Sprintf("Clients\n%d", len(m.clients))),
		boxStyle.Render(fmt.Sprintf("Browsers\n%d", int(math.Round(m.animB)))),
		boxStyle.Render(fmt.Sprintf("Pass rate\n%d%%", int(math.Round(m.animP)))),
		boxStyle.Render(fmt.Sprintf("Updated\n%s", lastUpdatedText(m.lastUpdated))),
	)
	charts := lipgloss.JoinHorizontal(
		lipgloss.Top,
		boxStyle.Render("Browser Sessions\n"+m.chartBrowsers.View()),
		boxStyle.Render("Pass Rate %\n"+m.chartPassRate.View()),
	)

	daemonState := "not started here"
	if procAlive(m.daemonCmd) {
		daemonState = fmt.Sprintf("up pid=%d log=%s", m.daemonCmd.Process.Pid, m.daemonLog)
	}
	proc := normalStyle.Render(fmt.Sprintf("formauditd[%s] | %s refreshing every %s", daemonState, m.spin.View(), m.refresh))

	lines := []string{
		titleStyle.Render("formaudit control"),
		cards,
		charts,
		lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane),
		reportPane,
	}
	if m.mode == urlMode {
		lines = append(lines, m.urlInput.View())
	}
	lines = append(lines,
		proc,
		titleStyle.Render("status: ")+m.status,
		normalStyle.Render(dashboardHelp),
	)
	return zone.Scan(strings.Join(lines, "\n"))
}

const dashboardHelp = "mouse: click row | tab panel | j/k move | a audit | u audit url | d disconnect | r refresh | s/x formauditd | c settings | q quit"

func (m model) settingsView() string {
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)

	lines := []string{titleStyle.Render("Settings") + normalStyle.Render("  "+m.settings.Path)}
	for i, f := range settingFields {
		prefix := "  "
		if i == m.settingsCursor {
			prefix = cursorStyle.Render("> ")
		}
		lines = append(lines, fmt.Sprintf("%s%s = %s", prefix, f.name, m.settingValue(i)))
	}

	editLine := normalStyle.Render("select a field, press e or enter to edit")
	if m.editingSetting {
		editLine = keyStyle.Render("editing") + " " + settingFields[m.settingsCursor].name + "\n" + m.editor.View()
	}

	help := normalStyle.Render("j/k move | e/enter edit+apply | s save | r reload | c/esc back")
	status := titleStyle.Render("status: ") + m.status
	box := boxStyle.Width(max(80, m.width-2)).Render(strings.Join(lines, "\n"))
	return strings.Join([]string{box, editLine, status, help}, "\n")
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func emptyDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func trimText(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func lastUpdatedText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.Kitchen)
}
