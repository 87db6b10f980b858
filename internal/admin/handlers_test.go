package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/browser/static"
	"github.com/adityalohuni/formaudit/internal/gather"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

const checkoutPage = `<html><head><meta charset="utf-8"></head><body><form>
<input name="ccname" autocomplete="cc-name">
<input name="cardnumber">
</form></body></html>`

type fakeBridge struct {
	sessions     []wsbridge.SessionInfo
	disconnected []string
}

func (b *fakeBridge) ListSessions() []wsbridge.SessionInfo { return b.sessions }

func (b *fakeBridge) Count() int { return len(b.sessions) }

func (b *fakeBridge) DisconnectSession(id string) error {
	for _, s := range b.sessions {
		if s.ID == id {
			b.disconnected = append(b.disconnected, id)
			return nil
		}
	}
	return wsbridge.ErrSessionNotFound
}

type fakeBrowser struct {
	browser.Channel
	tabs      []browser.TabInfo
	navigated []string
	targets   []browser.Target
}

func (b *fakeBrowser) Navigate(ctx context.Context, url string) (browser.NavigateResult, error) {
	b.navigated = append(b.navigated, url)
	return browser.NavigateResult{URL: url + "#loaded"}, nil
}

func (b *fakeBrowser) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	target, _ := browser.TargetFromContext(ctx)
	b.targets = append(b.targets, target)
	return b.tabs, nil
}

func newHandlers(t *testing.T) (*Handlers, *fakeBridge, *fakeBrowser) {
	t.Helper()
	doc, err := static.ParseString(checkoutPage)
	require.NoError(t, err)
	br := &fakeBrowser{
		Channel: static.NewChannel(doc, gather.Natives()),
		tabs:    []browser.TabInfo{{ID: 4, URL: "https://shop.test/pay", Active: true}},
	}
	bridge := &fakeBridge{sessions: []wsbridge.SessionInfo{{ID: "s1"}, {ID: "s2", Active: true}}}
	h := &Handlers{
		StartedAt:  time.Now(),
		Clients:    session.NewRegistry(),
		Bridge:     bridge,
		Browser:    br,
		Audits:     auditsvc.New(auditsvc.Options{}),
		ConfigPath: filepath.Join(t.TempDir(), "config.toml"),
	}
	return h, bridge, br
}

func serve(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux, func(next http.Handler) http.Handler { return next })
	return mux
}

func do(t *testing.T, mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAuditCurrentTab(t *testing.T) {
	h, _, br := newHandlers(t)
	mux := serve(h)

	rec := do(t, mux, http.MethodPost, "/admin/audit", `{"session_id":"s1","audits":["card-name","card-number"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "https://shop.test/pay", rep.URL)
	require.Len(t, rep.Results, 2)
	assert.Equal(t, report.Summary{Passed: 1, Failed: 1}, rep.Summary())
	assert.Empty(t, br.navigated)
	require.Len(t, br.targets, 1)
	assert.Equal(t, "s1", br.targets[0].SessionID)
}

func TestAuditNavigatesFirst(t *testing.T) {
	h, _, br := newHandlers(t)
	rec := do(t, serve(h), http.MethodPost, "/admin/audit", `{"url":"https://shop.test/checkout"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"https://shop.test/checkout"}, br.navigated)
	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "https://shop.test/checkout#loaded", rep.URL)
	assert.Len(t, rep.Results, len(h.Audits.Audits()))
}

func TestAuditRejectsUnknownAudit(t *testing.T) {
	h, _, _ := newHandlers(t)
	rec := do(t, serve(h), http.MethodPost, "/admin/audit", `{"audits":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditRejectsBadBody(t *testing.T) {
	h, _, _ := newHandlers(t)
	mux := serve(h)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPost, "/admin/audit", `{"extra":1}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, mux, http.MethodGet, "/admin/audit", "").Code)
}

func TestLatestReport(t *testing.T) {
	h, _, _ := newHandlers(t)
	mux := serve(h)

	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodGet, "/admin/report/latest", "").Code)

	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/admin/audit", `{}`).Code)

	rec := do(t, mux, http.MethodGet, "/admin/report/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "https://shop.test/pay", rep.URL)

	rec = do(t, mux, http.MethodGet, "/admin/report/latest?format=yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snapshotId:")

	rec = do(t, mux, http.MethodGet, "/admin/report/latest?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusIncludesLastAudit(t *testing.T) {
	h, _, _ := newHandlers(t)
	mux := serve(h)
	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/admin/audit", `{"audits":["charset"]}`).Code)

	rec := do(t, mux, http.MethodGet, "/admin/status", "")
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.BrowserSessions)
	assert.Equal(t, 1, st.Snapshots)
	require.NotNil(t, st.LastAudit)
	assert.Equal(t, 1, st.LastAudit.Passed)
	assert.Equal(t, "https://shop.test/pay", st.LastAuditURL)
}

func TestAuditsList(t *testing.T) {
	h, _, _ := newHandlers(t)
	rec := do(t, serve(h), http.MethodGet, "/admin/audits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var metas []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metas))
	ids := make([]string, 0, len(metas))
	for _, m := range metas {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"card-name", "card-number", "expiration", "cvc", "charset"}, ids)
}

func TestBrowsersListIncludesTabs(t *testing.T) {
	h, _, br := newHandlers(t)
	rec := do(t, serve(h), http.MethodGet, "/admin/browsers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []BrowserSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, br.tabs, sessions[0].Tabs)
	assert.Equal(t, []browser.Target{{SessionID: "s1"}, {SessionID: "s2"}}, br.targets)
}

func TestDisconnectBrowser(t *testing.T) {
	h, bridge, _ := newHandlers(t)
	mux := serve(h)

	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/admin/browsers/disconnect?id=active", "").Code)
	assert.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/admin/browsers/disconnect?id=s1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, http.MethodPost, "/admin/browsers/disconnect?id=zz", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPost, "/admin/browsers/disconnect", "").Code)
	assert.Equal(t, []string{"s2", "s1"}, bridge.disconnected)
}

func TestDisconnectClient(t *testing.T) {
	h, _, _ := newHandlers(t)
	id := h.Clients.Register("", session.ClientInfo{Name: "agent"})
	rec := do(t, serve(h), http.MethodPost, "/admin/clients/disconnect?id="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, h.Clients.Count())
}

func TestConfigRoundTrip(t *testing.T) {
	h, _, _ := newHandlers(t)
	mux := serve(h)

	rec := do(t, mux, http.MethodGet, "/admin/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg ConfigPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, "extension", cfg.GatherDriver)

	cfg.GatherDriver = "rod"
	cfg.GatherTimeout = "45s"
	cfg.LogLevel = "debug"
	body, err := json.Marshal(cfg)
	require.NoError(t, err)
	rec = do(t, mux, http.MethodPut, "/admin/config", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved ConfigPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "rod", saved.GatherDriver)
	assert.Equal(t, "45s", saved.GatherTimeout)
	assert.Equal(t, "debug", saved.LogLevel)

	cfg.GatherDriver = "netscape"
	body, err = json.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPut, "/admin/config", string(body)).Code)

	cfg.GatherDriver = "rod"
	cfg.GatherTimeout = "soon"
	body, err = json.Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, http.MethodPut, "/admin/config", string(body)).Code)
}
