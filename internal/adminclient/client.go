package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/adityalohuni/formaudit/internal/admin"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/report"
	"github.com/adityalohuni/formaudit/internal/session"
)

// ErrNoReport is returned by LatestReport before anything was audited.
var ErrNoReport = errors.New("no report yet")

// StatusError is a non-2xx admin response.
type StatusError struct {
	Code    int
	Status  string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "admin request failed: " + e.Status
	}
	return fmt.Sprintf("admin request failed: %s: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Status(ctx context.Context) (admin.Status, error) {
	var out admin.Status
	err := c.getJSON(ctx, "/admin/status", &out)
	return out, err
}

func (c *Client) ListClients(ctx context.Context) ([]session.ClientInfo, error) {
	var out []session.ClientInfo
	if err := c.getJSON(ctx, "/admin/clients", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListBrowsers(ctx context.Context) ([]admin.BrowserSession, error) {
	var out []admin.BrowserSession
	if err := c.getJSON(ctx, "/admin/browsers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListAudits(ctx context.Context) ([]audit.Meta, error) {
	var out []audit.Meta
	if err := c.getJSON(ctx, "/admin/audits", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunAudit asks the daemon to gather from an extension tab and audit it.
func (c *Client) RunAudit(ctx context.Context, in admin.AuditRequest) (report.Report, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return report.Report{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/audit", bytes.NewReader(body))
	if err != nil {
		return report.Report{}, err
	}
	var out report.Report
	if err := c.doJSON(req, &out); err != nil {
		return report.Report{}, err
	}
	return out, nil
}

func (c *Client) LatestReport(ctx context.Context) (report.Report, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/admin/report/latest", nil)
	if err != nil {
		return report.Report{}, err
	}
	var out report.Report
	if err := c.doJSON(req, &out); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return report.Report{}, ErrNoReport
		}
		return report.Report{}, err
	}
	return out, nil
}

func (c *Client) GetConfig(ctx context.Context) (admin.ConfigPayload, error) {
	var out admin.ConfigPayload
	err := c.getJSON(ctx, "/admin/config", &out)
	return out, err
}

func (c *Client) SetConfig(ctx context.Context, in admin.ConfigPayload) (admin.ConfigPayload, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return admin.ConfigPayload{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/admin/config", bytes.NewReader(body))
	if err != nil {
		return admin.ConfigPayload{}, err
	}
	var out admin.ConfigPayload
	if err := c.doJSON(req, &out); err != nil {
		return admin.ConfigPayload{}, err
	}
	return out, nil
}

func (c *Client) DisconnectClient(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/clients/disconnect?id="+url.QueryEscape(id), nil)
	if err != nil {
		return err
	}
	return c.doNoBody(req)
}

func (c *Client) DisconnectBrowser(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/browsers/disconnect?id="+url.QueryEscape(id), nil)
	if err != nil {
		return err
	}
	return c.doNoBody(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doNoBody(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &StatusError{Code: resp.StatusCode, Status: resp.Status, Message: strings.TrimSpace(string(msg))}
}
