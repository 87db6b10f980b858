package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adityalohuni/formaudit/internal/config"
)

type settingsForm struct {
	DaemonAddr      string
	MCPToken        string
	AdminToken      string
	ClientMaxIdle   string
	AdminBaseURL    string
	RefreshInterval string
	GatherDriver    string
	GatherTimeout   string
	DebuggerURL     string
	LogLevel        string
	LogFormat       string
}

type settingField struct {
	name  string
	value func(*settingsForm) *string
}

var settingFields = []settingField{
	{"daemon.addr", func(f *settingsForm) *string { return &f.DaemonAddr }},
	{"daemon.client_max_idle", func(f *settingsForm) *string { return &f.ClientMaxIdle }},
	{"auth.mcp_token", func(f *settingsForm) *string { return &f.MCPToken }},
	{"auth.admin_token", func(f *settingsForm) *string { return &f.AdminToken }},
	{"gather.driver", func(f *settingsForm) *string { return &f.GatherDriver }},
	{"gather.timeout", func(f *settingsForm) *string { return &f.GatherTimeout }},
	{"gather.debugger_url", func(f *settingsForm) *string { return &f.DebuggerURL }},
	{"log.level", func(f *settingsForm) *string { return &f.LogLevel }},
	{"log.format", func(f *settingsForm) *string { return &f.LogFormat }},
	{"tui.admin_base_url", func(f *settingsForm) *string { return &f.AdminBaseURL }},
	{"tui.refresh_interval", func(f *settingsForm) *string { return &f.RefreshInterval }},
}

func formFromSettings(s config.Settings) settingsForm {
	return settingsForm{
		DaemonAddr:      s.DaemonAddr,
		MCPToken:        s.MCPToken,
		AdminToken:      s.AdminToken,
		ClientMaxIdle:   s.ClientMaxIdle.String(),
		AdminBaseURL:    s.AdminBaseURL,
		RefreshInterval: s.TUIRefreshInterval.String(),
		GatherDriver:    s.Gather.Driver,
		GatherTimeout:   s.Gather.Timeout.String(),
		DebuggerURL:     s.Gather.DebuggerURL,
		LogLevel:        s.LogLevel,
		LogFormat:       s.LogFormat,
	}
}

func formToSettings(base config.Settings, form settingsForm) (config.Settings, error) {
	next := base
	next.DaemonAddr = strings.TrimSpace(form.DaemonAddr)
	next.MCPToken = strings.TrimSpace(form.MCPToken)
	next.AdminToken = strings.TrimSpace(form.AdminToken)
	next.AdminBaseURL = strings.TrimSpace(form.AdminBaseURL)
	next.Gather.Driver = strings.ToLower(strings.TrimSpace(form.GatherDriver))
	next.Gather.DebuggerURL = strings.TrimSpace(form.DebuggerURL)
	next.LogLevel = strings.TrimSpace(form.LogLevel)
	next.LogFormat = strings.TrimSpace(form.LogFormat)

	var err error
	if next.ClientMaxIdle, err = parseDurationField("daemon.client_max_idle", form.ClientMaxIdle); err != nil {
		return config.Settings{}, err
	}
	if next.TUIRefreshInterval, err = parseDurationField("tui.refresh_interval", form.RefreshInterval); err != nil {
		return config.Settings{}, err
	}
	if next.Gather.Timeout, err = parseDurationField("gather.timeout", form.GatherTimeout); err != nil {
		return config.Settings{}, err
	}
	return next, nil
}

func parseDurationField(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New(name + " cannot be empty")
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

func (m model) settingValue(i int) string {
	if i < 0 || i >= len(settingFields) {
		return ""
	}
	return *settingFields[i].value(&m.form)
}

func (m *model) setSelectedSettingValue(value string) {
	if m.settingsCursor < 0 || m.settingsCursor >= len(settingFields) {
		return
	}
	*settingFields[m.settingsCursor].value(&m.form) = value
}

func updateSettingsMode(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingSetting {
		switch msg.String() {
		case "enter":
			m.setSelectedSettingValue(m.editor.Value())
			m.editingSetting = false
			m.editor.Blur()
			m.status = "value updated (press s to save config)"
			return m, nil
		case "esc":
			m.editingSetting = false
			m.editor.Blur()
			m.status = "edit canceled"
			return m, nil
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "c":
		m.mode = dashboardMode
		m.status = "dashboard mode"
		return m, nil
	case "up", "k":
		if m.settingsCursor > 0 {
			m.settingsCursor--
		}
		return m, nil
	case "down", "j":
		if m.settingsCursor < len(settingFields)-1 {
			m.settingsCursor++
		}
		return m, nil
	case "r":
		return m, reloadConfigCmd(m.settings.Path)
	case "s":
		return m, saveConfigCmd(m.settings, m.form)
	case "e", "enter":
		m.editingSetting = true
		m.editor.SetValue(m.settingValue(m.settingsCursor))
		m.editor.CursorEnd()
		cmd := m.editor.Focus()
		m.status = "editing " + settingFields[m.settingsCursor].name
		return m, cmd
	}
	return m, nil
}
