package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/config"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

type Status struct {
	Uptime          string          `json:"uptime"`
	MCPClients      int             `json:"mcp_clients"`
	BrowserSessions int             `json:"browser_sessions"`
	Snapshots       int             `json:"snapshots"`
	LastAudit       *report.Summary `json:"last_audit,omitempty"`
	LastAuditURL    string          `json:"last_audit_url,omitempty"`
}

// Bridge is the part of the extension bridge the admin API manages.
type Bridge interface {
	ListSessions() []wsbridge.SessionInfo
	Count() int
	DisconnectSession(id string) error
}

// Browser evaluates in and steers extension tabs.
type Browser interface {
	browser.Channel
	browser.Controller
}

type Handlers struct {
	StartedAt    time.Time
	Clients      *session.Registry
	Bridge       Bridge
	Browser      Browser
	Audits       *auditsvc.Service
	Logger       *zap.Logger
	TabsTimeout  time.Duration
	AuditTimeout time.Duration
	MaxIdle      time.Duration
	ConfigPath   string
}

// Register mounts every admin route on mux behind auth.
func (h *Handlers) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	route := func(path string, fn http.HandlerFunc) {
		mux.Handle(path, auth(fn))
	}
	route("/admin/status", h.Status)
	route("/admin/clients", h.ClientsList)
	route("/admin/browsers", h.BrowsersList)
	route("/admin/clients/disconnect", h.DisconnectClient)
	route("/admin/browsers/disconnect", h.DisconnectBrowser)
	route("/admin/audits", h.AuditsList)
	route("/admin/audit", h.Audit)
	route("/admin/report/latest", h.LatestReport)
	route("/admin/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ConfigGet(w, r)
		case http.MethodPut:
			h.ConfigSet(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	h.prune()
	resp := Status{
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		MCPClients:      h.Clients.Count(),
		BrowserSessions: h.Bridge.Count(),
	}
	if h.Audits != nil {
		resp.Snapshots = len(h.Audits.Snapshots())
		if rep, ok := h.Audits.LatestReport(); ok {
			summary := rep.Summary()
			resp.LastAudit = &summary
			resp.LastAuditURL = rep.URL
		}
	}
	writeJSON(w, resp)
}

func (h *Handlers) ClientsList(w http.ResponseWriter, _ *http.Request) {
	h.prune()
	writeJSON(w, h.Clients.List())
}

func (h *Handlers) BrowsersList(w http.ResponseWriter, r *http.Request) {
	sessions := h.Bridge.ListSessions()
	resp := make([]BrowserSession, 0, len(sessions))
	for _, s := range sessions {
		entry := BrowserSession{
			SessionInfo: s,
		}
		if h.Browser != nil {
			ctx, cancel := context.WithTimeout(r.Context(), h.tabsTimeout())
			target := browser.Target{SessionID: s.ID}
			tabs, err := h.Browser.ListTabs(browser.WithTarget(ctx, target))
			cancel()
			if err != nil {
				entry.TabsError = err.Error()
			} else {
				entry.Tabs = tabs
			}
		}
		resp = append(resp, entry)
	}
	writeJSON(w, resp)
}

func (h *Handlers) DisconnectClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	h.Clients.Unregister(id)
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

// DisconnectBrowser closes one extension session. The id "active" picks
// whichever session currently receives unaddressed commands.
func (h *Handlers) DisconnectBrowser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	sessionID := id
	if id == "active" {
		sessionID = ""
		for _, s := range h.Bridge.ListSessions() {
			if s.Active {
				sessionID = s.ID
				break
			}
		}
		if sessionID == "" {
			http.Error(w, wsbridge.ErrNoActiveSession.Error(), http.StatusNotFound)
			return
		}
	}
	if err := h.Bridge.DisconnectSession(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

func (h *Handlers) AuditsList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Audits == nil {
		http.Error(w, "audits unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.Audits.Audits())
}

type AuditRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	TabID     int      `json:"tab_id,omitempty"`
	URL       string   `json:"url,omitempty"`
	Audits    []string `json:"audits,omitempty"`
}

// Audit gathers from an extension tab and audits the snapshot. With a url
// the tab is navigated first; without one the tab is audited as it is.
func (h *Handlers) Audit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Audits == nil || h.Browser == nil {
		http.Error(w, "audits unavailable", http.StatusServiceUnavailable)
		return
	}
	var req AuditRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.auditTimeout())
	defer cancel()
	ctx = browser.WithTarget(ctx, browser.Target{SessionID: strings.TrimSpace(req.SessionID), TabID: req.TabID})

	pageURL, err := h.resolvePage(ctx, strings.TrimSpace(req.URL), req.TabID)
	if err != nil {
		h.fail(w, "resolve page", err)
		return
	}
	rep, err := h.Audits.Run(ctx, h.Browser, pageURL, req.Audits...)
	if err != nil {
		h.fail(w, "audit", err)
		return
	}
	writeJSON(w, rep)
}

func (h *Handlers) resolvePage(ctx context.Context, url string, tabID int) (string, error) {
	if url != "" {
		res, err := h.Browser.Navigate(ctx, url)
		if err != nil {
			return "", err
		}
		if res.URL != "" {
			return res.URL, nil
		}
		return url, nil
	}
	tabs, err := h.Browser.ListTabs(ctx)
	if err != nil {
		return "", err
	}
	if tab, ok := browser.PickTab(tabs, tabID); ok {
		return tab.URL, nil
	}
	return "", nil
}

// LatestReport serves the last report as JSON, or as text or YAML when
// ?format= asks for it.
func (h *Handlers) LatestReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Audits == nil {
		http.Error(w, "audits unavailable", http.StatusServiceUnavailable)
		return
	}
	rep, ok := h.Audits.LatestReport()
	if !ok {
		http.Error(w, "no report yet", http.StatusNotFound)
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("format"))
	if raw == "" {
		writeJSON(w, rep)
		return
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch format {
	case report.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	case report.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	if err := report.Write(w, rep, format); err != nil {
		h.logger().Warn("write report", zap.Error(err))
	}
}

func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger().Warn("admin "+op+" failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	var evalErr *browser.EvalError
	switch {
	case errors.Is(err, audit.ErrUnknownAudit):
		return http.StatusBadRequest
	case errors.Is(err, wsbridge.ErrNoActiveSession), errors.Is(err, wsbridge.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &evalErr), errors.Is(err, wsbridge.ErrSessionClosed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type ConfigPayload struct {
	Path               string `json:"path,omitempty"`
	DaemonAddr         string `json:"daemon_addr"`
	MCPToken           string `json:"mcp_token"`
	AdminToken         string `json:"admin_token"`
	ClientMaxIdle      string `json:"client_max_idle"`
	AdminBaseURL       string `json:"admin_base_url"`
	TUIRefreshInterval string `json:"tui_refresh_interval"`
	GatherDriver       string `json:"gather_driver"`
	GatherTimeout      string `json:"gather_timeout"`
	DebuggerURL        string `json:"debugger_url,omitempty"`
	Headless           bool   `json:"headless"`
	SnapshotLimit      int    `json:"snapshot_limit"`
	LogLevel           string `json:"log_level"`
	LogFormat          string `json:"log_format"`
}

func (h *Handlers) ConfigGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	settings, err := config.LoadOrCreate(h.ConfigPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, payloadFromSettings(settings))
}

// ConfigSet saves the settings file. Running components keep their current
// values until the daemon restarts.
func (h *Handlers) ConfigSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload ConfigPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	maxIdle, err := time.ParseDuration(strings.TrimSpace(payload.ClientMaxIdle))
	if err != nil {
		http.Error(w, "invalid client_max_idle", http.StatusBadRequest)
		return
	}
	refresh, err := time.ParseDuration(strings.TrimSpace(payload.TUIRefreshInterval))
	if err != nil {
		http.Error(w, "invalid tui_refresh_interval", http.StatusBadRequest)
		return
	}
	var gatherTimeout time.Duration
	if raw := strings.TrimSpace(payload.GatherTimeout); raw != "" {
		gatherTimeout, err = time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid gather_timeout", http.StatusBadRequest)
			return
		}
	}

	next := config.Settings{
		Path:               strings.TrimSpace(payload.Path),
		DaemonAddr:         strings.TrimSpace(payload.DaemonAddr),
		MCPToken:           strings.TrimSpace(payload.MCPToken),
		AdminToken:         strings.TrimSpace(payload.AdminToken),
		ClientMaxIdle:      maxIdle,
		AdminBaseURL:       strings.TrimSpace(payload.AdminBaseURL),
		TUIRefreshInterval: refresh,
		Gather: config.GatherSettings{
			Driver:        strings.TrimSpace(payload.GatherDriver),
			Timeout:       gatherTimeout,
			DebuggerURL:   strings.TrimSpace(payload.DebuggerURL),
			Headless:      payload.Headless,
			SnapshotLimit: payload.SnapshotLimit,
		},
		LogLevel:  strings.TrimSpace(payload.LogLevel),
		LogFormat: strings.TrimSpace(payload.LogFormat),
	}
	if next.Path == "" {
		next.Path = h.ConfigPath
	}

	saved, err := config.Save(next)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger().Info("config saved", zap.String("path", saved.Path))
	writeJSON(w, payloadFromSettings(saved))
}

func payloadFromSettings(settings config.Settings) ConfigPayload {
	return ConfigPayload{
		Path:               settings.Path,
		DaemonAddr:         settings.DaemonAddr,
		MCPToken:           settings.MCPToken,
		AdminToken:         settings.AdminToken,
		ClientMaxIdle:      settings.ClientMaxIdle.String(),
		AdminBaseURL:       settings.AdminBaseURL,
		TUIRefreshInterval: settings.TUIRefreshInterval.String(),
		GatherDriver:       settings.Gather.Driver,
		GatherTimeout:      settings.Gather.Timeout.String(),
		DebuggerURL:        settings.Gather.DebuggerURL,
		Headless:           settings.Gather.Headless,
		SnapshotLimit:      settings.Gather.SnapshotLimit,
		LogLevel:           settings.LogLevel,
		LogFormat:          settings.LogFormat,
	}
}

func (h *Handlers) prune() {
	if n := h.Clients.Prune(h.MaxIdle); n > 0 {
		h.logger().Debug("pruned idle clients", zap.Int("count", n))
	}
}

func (h *Handlers) tabsTimeout() time.Duration {
	if h.TabsTimeout <= 0 {
		return 2 * time.Second
	}
	return h.TabsTimeout
}

func (h *Handlers) auditTimeout() time.Duration {
	if h.AuditTimeout <= 0 {
		return 30 * time.Second
	}
	return h.AuditTimeout
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

type BrowserSession struct {
	wsbridge.SessionInfo
	Tabs      []browser.TabInfo `json:"tabs,omitempty"`
	TabsError string            `json:"tabs_error,omitempty"`
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(value)
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid json payload")
	}
	return nil
}
