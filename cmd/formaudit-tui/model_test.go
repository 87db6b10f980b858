package main

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	m.Run()
}

type fakeAdmin struct {
	audited      []admin.AuditRequest
	disconnected []string
}

func (f *fakeAdmin) Status(context.Context) (admin.Status, error) { return admin.Status{}, nil }

func (f *fakeAdmin) ListClients(context.Context) ([]session.ClientInfo, error) { return nil, nil }

func (f *fakeAdmin) ListBrowsers(context.Context) ([]admin.BrowserSession, error) { return nil, nil }

func (f *fakeAdmin) LatestReport(context.Context) (report.Report, error) { return report.Report{}, nil }

func (f *fakeAdmin) RunAudit(_ context.Context, in admin.AuditRequest) (report.Report, error) {
	f.audited = append(f.audited, in)
	return sampleReport("snap-1"), nil
}

func (f *fakeAdmin) DisconnectClient(_ context.Context, id string) error {
	f.disconnected = append(f.disconnected, "client:"+id)
	return nil
}

func (f *fakeAdmin) DisconnectBrowser(_ context.Context, id string) error {
	f.disconnected = append(f.disconnected, "browser:"+id)
	return nil
}

func sampleReport(id string) report.Report {
	return report.Report{
		SnapshotID: id,
		URL:        "https://shop.test/pay",
		AuditedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Results: []audit.Result{
			{ID: "card-name", Verdict: audit.Pass()},
			{ID: "expiration", Verdict: audit.Score(0.5, nil)},
			{ID: "cvc", Verdict: audit.Score(0, nil)},
			{ID: "card-number", Verdict: audit.NotApplicable(nil)},
		},
	}
}

func loadedModel(t *testing.T, fa *fakeAdmin) model {
	t.Helper()
	m := newModel(fa, config.Settings{TUIRefreshInterval: time.Second})
	browsers := []admin.BrowserSession{
		{SessionInfo: wsbridge.SessionInfo{ID: "b2", ConnectedAt: time.Unix(20, 0)}},
		{
			SessionInfo: wsbridge.SessionInfo{ID: "b1", ConnectedAt: time.Unix(10, 0), Active: true},
			Tabs:        []browser.TabInfo{{ID: 4, URL: "https://shop.test/pay", Active: true}},
		},
	}
	next, _ := m.Update(loadResultMsg{
		clients:  []session.ClientInfo{{ID: "client-aaaa", Name: "claude"}},
		browsers: browsers,
		at:       time.Now(),
	})
	return next.(model)
}

func runCmd(t *testing.T, m tea.Model, cmd tea.Cmd) model {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	return next.(model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLoadSortsBrowsersByConnectTime(t *testing.T) {
	m := loadedModel(t, &fakeAdmin{})
	require.Len(t, m.browsers, 2)
	assert.Equal(t, "b1", m.browsers[0].ID)
	assert.Contains(t, m.status, "browser_sessions=2")
}

func TestAuditKeyTargetsSelectedSession(t *testing.T) {
	fa := &fakeAdmin{}
	m := loadedModel(t, fa)

	next, _ := m.Update(key("j"))
	next, cmd := next.Update(key("a"))
	assert.True(t, next.(model).auditing)

	m = runCmd(t, next, cmd)
	require.Len(t, fa.audited, 1)
	assert.Equal(t, admin.AuditRequest{SessionID: "b2"}, fa.audited[0])
	assert.False(t, m.auditing)
	require.NotNil(t, m.report)
	assert.Equal(t, "snap-1", m.report.SnapshotID)
	assert.Contains(t, m.status, "1 passed, 1 partial, 1 failed")
}

func TestAuditURLMode(t *testing.T) {
	fa := &fakeAdmin{}
	m := loadedModel(t, fa)

	next, _ := m.Update(key("u"))
	require.Equal(t, urlMode, next.(model).mode)
	for _, r := range "https://shop.test/checkout" {
		next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	next, cmd := next.Update(key("enter"))
	assert.Equal(t, dashboardMode, next.(model).mode)

	runCmd(t, next, cmd)
	require.Len(t, fa.audited, 1)
	assert.Equal(t, "https://shop.test/checkout", fa.audited[0].URL)
	assert.Equal(t, "b1", fa.audited[0].SessionID)
}

func TestSecondAuditWhileRunningIsIgnored(t *testing.T) {
	m := loadedModel(t, &fakeAdmin{})
	next, _ := m.Update(key("a"))
	next, cmd := next.Update(key("a"))
	assert.Nil(t, cmd)
	assert.Equal(t, "an audit is already running", next.(model).status)
}

func TestDisconnectFocusedPanel(t *testing.T) {
	fa := &fakeAdmin{}
	m := loadedModel(t, fa)

	_, cmd := m.Update(key("d"))
	require.NotNil(t, cmd)
	msg := cmd().(disconnectResultMsg)
	assert.NoError(t, msg.err)

	next, _ := m.Update(key("tab"))
	next, _ = next.Update(key("tab"))
	require.Equal(t, clientsPanel, next.(model).focus)
	_, cmd = next.Update(key("d"))
	cmd()

	assert.Equal(t, []string{"browser:b1", "client:client-aaaa"}, fa.disconnected)
}

func TestSetReportPushesOncePerSnapshot(t *testing.T) {
	m := newModel(&fakeAdmin{}, config.Settings{})
	rep := sampleReport("snap-1")
	m.setReport(&rep)
	first := m.report
	same := sampleReport("snap-1")
	m.setReport(&same)
	assert.Same(t, first, m.report)

	other := sampleReport("snap-2")
	m.setReport(&other)
	assert.Equal(t, "snap-2", m.report.SnapshotID)
}

func TestPassRate(t *testing.T) {
	assert.Zero(t, passRate(nil))
	rep := sampleReport("x")
	assert.InDelta(t, 100.0/3, passRate(&rep), 1e-9)
	empty := report.Report{Results: []audit.Result{{ID: "cvc", Verdict: audit.NotApplicable(nil)}}}
	assert.Zero(t, passRate(&empty))
}

func TestBrowserRowLines(t *testing.T) {
	m := loadedModel(t, &fakeAdmin{})
	rows := m.renderBrowserRows()
	want := 0
	for _, b := range m.browsers {
		want += browserRowLines(b)
	}
	assert.Equal(t, want, len(splitLines(rows)))
	assert.Equal(t, 3, browserRowLines(admin.BrowserSession{TabsError: "boom"}))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range len(s) {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func TestFormRoundTrip(t *testing.T) {
	base := config.Settings{
		DaemonAddr:         ":9099",
		ClientMaxIdle:      30 * time.Minute,
		TUIRefreshInterval: 2 * time.Second,
		Gather:             config.GatherSettings{Driver: "extension", Timeout: 30 * time.Second, Headless: true},
		LogLevel:           "info",
		LogFormat:          "json",
	}
	form := formFromSettings(base)
	form.GatherDriver = " Rod "
	form.GatherTimeout = "45s"

	next, err := formToSettings(base, form)
	require.NoError(t, err)
	assert.Equal(t, "rod", next.Gather.Driver)
	assert.Equal(t, 45*time.Second, next.Gather.Timeout)
	assert.True(t, next.Gather.Headless)
	assert.Equal(t, 30*time.Minute, next.ClientMaxIdle)
}

func TestFormRejectsBadDurations(t *testing.T) {
	base := config.Settings{ClientMaxIdle: time.Minute, TUIRefreshInterval: time.Second, Gather: config.GatherSettings{Timeout: time.Second}}
	for name, mutate := range map[string]func(*settingsForm){
		"gather.timeout":         func(f *settingsForm) { f.GatherTimeout = "soon" },
		"tui.refresh_interval":   func(f *settingsForm) { f.RefreshInterval = "" },
		"daemon.client_max_idle": func(f *settingsForm) { f.ClientMaxIdle = "-1s" },
	} {
		t.Run(name, func(t *testing.T) {
			form := formFromSettings(base)
			mutate(&form)
			_, err := formToSettings(base, form)
			assert.ErrorContains(t, err, name)
		})
	}
}

func TestSettingsEdit(t *testing.T) {
	m := newModel(&fakeAdmin{}, config.Settings{LogLevel: "info"})
	next, _ := m.Update(key("c"))
	require.Equal(t, settingsMode, next.(model).mode)

	idx := -1
	for i, f := range settingFields {
		if f.name == "log.level" {
			idx = i
		}
	}
	require.NotEqual(t, -1, idx)
	for range idx {
		next, _ = next.Update(key("j"))
	}
	next, _ = next.Update(key("e"))
	require.True(t, next.(model).editingSetting)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("debug")})
	next, _ = next.Update(key("enter"))

	assert.Equal(t, "debug", next.(model).form.LogLevel)
	assert.False(t, next.(model).editingSetting)
}
