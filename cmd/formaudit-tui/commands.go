package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/adminclient"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
)

// Admin is the part of the admin API the dashboard drives.
type Admin interface {
	Status(ctx context.Context) (admin.Status, error)
	ListClients(ctx context.Context) ([]session.ClientInfo, error)
	ListBrowsers(ctx context.Context) ([]admin.BrowserSession, error)
	LatestReport(ctx context.Context) (report.Report, error)
	RunAudit(ctx context.Context, in admin.AuditRequest) (report.Report, error)
	DisconnectClient(ctx context.Context, id string) error
	DisconnectBrowser(ctx context.Context, id string) error
}

const fetchTimeout = 3 * time.Second

func newAdminClient(s config.Settings) *adminclient.Client {
	return adminclient.New(s.AdminBaseURL, s.AdminToken, &http.Client{})
}

func fetchCmd(client Admin) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		status, err := client.Status(ctx)
		if err != nil {
			return loadResultMsg{err: err}
		}
		clients, err := client.ListClients(ctx)
		if err != nil {
			return loadResultMsg{err: err}
		}
		browsers, err := client.ListBrowsers(ctx)
		if err != nil {
			return loadResultMsg{err: err}
		}
		msg := loadResultMsg{status: status, clients: clients, browsers: browsers, at: time.Now()}
		if status.LastAudit == nil {
			return msg
		}
		rep, err := client.LatestReport(ctx)
		switch {
		case errors.Is(err, adminclient.ErrNoReport):
		case err != nil:
			return loadResultMsg{err: err}
		default:
			msg.report = &rep
		}
		return msg
	}
}

func auditCmd(client Admin, req admin.AuditRequest, gatherTimeout time.Duration) tea.Cmd {
	if gatherTimeout <= 0 {
		gatherTimeout = 30 * time.Second
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), gatherTimeout+fetchTimeout)
		defer cancel()
		rep, err := client.RunAudit(ctx, req)
		return auditResultMsg{report: rep, err: err}
	}
}

func disconnectClientCmd(client Admin, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		err := client.DisconnectClient(ctx, id)
		return disconnectResultMsg{target: "client", id: id, err: err}
	}
}

func disconnectBrowserCmd(client Admin, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		err := client.DisconnectBrowser(ctx, id)
		return disconnectResultMsg{target: "browser", id: id, err: err}
	}
}

func saveConfigCmd(current config.Settings, form settingsForm) tea.Cmd {
	return func() tea.Msg {
		next, err := formToSettings(current, form)
		if err != nil {
			return configSavedMsg{err: err}
		}
		saved, err := config.Save(next)
		if err != nil {
			return configSavedMsg{err: err}
		}
		return configSavedMsg{settings: saved}
	}
}

func reloadConfigCmd(path string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.LoadOrCreate(path)
		if err != nil {
			return configReloadedMsg{err: err}
		}
		return configReloadedMsg{settings: cfg}
	}
}

// daemonCommand runs an installed formauditd, or builds it from the
// enclosing module when none is on PATH.
func daemonCommand(configPath string) (*exec.Cmd, error) {
	args := []string{}
	if configPath != "" {
		args = append(args, "-config", configPath)
	}
	if bin, err := exec.LookPath("formauditd"); err == nil {
		return exec.Command(bin, args...), nil
	}
	root, err := findRepoRoot()
	if err != nil {
		return nil, errors.New("formauditd not on PATH and no module root found")
	}
	cmd := exec.Command("go", append([]string{"run", "./cmd/formauditd"}, args...)...)
	cmd.Dir = root
	return cmd, nil
}

func startDaemonCmd(configPath, logPath string) tea.Cmd {
	return func() tea.Msg {
		cmd, err := daemonCommand(configPath)
		if err != nil {
			return daemonActionMsg{action: "start", err: err}
		}
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return daemonActionMsg{action: "start", err: err}
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		if err := cmd.Start(); err != nil {
			_ = logFile.Close()
			return daemonActionMsg{action: "start", err: err}
		}
		go func() {
			_ = cmd.Wait()
			_ = logFile.Close()
		}()
		return daemonActionMsg{action: "start", cmd: cmd}
	}
}

func stopDaemonCmd(cmd *exec.Cmd) tea.Cmd {
	return func() tea.Msg {
		if !procAlive(cmd) {
			return daemonActionMsg{action: "stop", err: errors.New("not started from this dashboard")}
		}
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			return daemonActionMsg{action: "stop", err: err}
		}
		return daemonActionMsg{action: "stop"}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func procAlive(cmd *exec.Cmd) bool {
	if cmd == nil || cmd.Process == nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}

func findRepoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cur := wd
	for {
		if _, err := os.Stat(filepath.Join(cur, "go.mod")); err == nil {
			return cur, nil
		}
		next := filepath.Dir(cur)
		if next == cur {
			return "", errors.New("go.mod not found from cwd")
		}
		cur = next
	}
}
