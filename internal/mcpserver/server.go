package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/i18n"
	"github.com/adityalohuni/formaudit/internal/report"
)

const (
	snapshotScheme = "artifacts"
	reportScheme   = "report"
)

type Options struct {
	Implementation *mcp.Implementation
	Instructions   string
	Logger         *zap.Logger
}

// Browser evaluates in and steers the tab an MCP call targets.
type Browser interface {
	browser.Channel
	browser.Controller
}

type Server struct {
	mcpServer *mcp.Server
	browser   Browser
	audits    *auditsvc.Service
	logger    *zap.Logger
}

type TargetInput struct {
	SessionID string `json:"sessionId,omitempty" jsonschema:"browser session id"`
	TabID     int    `json:"tabId,omitempty" jsonschema:"browser tab id"`
}

func New(browserClient Browser, audits *auditsvc.Service, opts Options) *Server {
	impl := opts.Implementation
	if impl == nil {
		impl = &mcp.Implementation{Name: "formaudit", Version: "v1.0.0"}
	}
	if audits == nil {
		audits = auditsvc.New(auditsvc.Options{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{Instructions: opts.Instructions})
	s := &Server{mcpServer: server, browser: browserClient, audits: audits, logger: logger.Named("mcp")}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit.list",
		Description: "List the registered audits and the artifacts each one needs.",
	}, s.listAudits)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit.gather",
		Description: "Collect form fields and meta elements from a tab and store them as a snapshot. Navigates first when url is set.",
	}, s.gather)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "audit.run",
		Description: "Audit a tab, or a stored snapshot when snapshotId is set. Runs every audit unless audits names a subset.",
	}, s.run)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser.navigate",
		Description: "Navigate to a URL in the active tab.",
	}, s.navigate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "browser.list_tabs",
		Description: "List available browser tabs for the active session.",
	}, s.listTabs)

	server.AddResource(&mcp.Resource{
		Name:        "snapshot_latest",
		Description: "Read the artifacts of the most recent snapshot.",
		URI:         snapshotScheme + "://snapshot/latest",
		MIMEType:    "application/json",
	}, s.readLatest)

	server.AddResource(&mcp.Resource{
		Name:        "report_latest",
		Description: "Read the most recent audit report.",
		URI:         reportScheme + "://latest",
		MIMEType:    "application/json",
	}, s.readReport)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "snapshot",
		Description: "Read a stored snapshot by ID.",
		URITemplate: snapshotScheme + "://snapshot/{snapshot_id}",
		MIMEType:    "application/json",
	}, s.readSnapshot)

	return s
}

func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func (s *Server) withTarget(ctx context.Context, target TargetInput) context.Context {
	return browser.WithTarget(ctx, browser.Target{
		SessionID: target.SessionID,
		TabID:     target.TabID,
	})
}

type EmptyInput struct{}

type AuditInfo struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	RequiredArtifacts []string `json:"requiredArtifacts"`
}

type ListAuditsOutput struct {
	Audits []AuditInfo `json:"audits"`
}

func (s *Server) listAudits(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ListAuditsOutput, error) {
	metas := s.audits.Audits()
	out := ListAuditsOutput{Audits: make([]AuditInfo, 0, len(metas))}
	for _, m := range metas {
		info := AuditInfo{
			ID:                m.ID,
			Title:             i18n.Format(m.Title),
			Description:       i18n.Format(m.Description),
			RequiredArtifacts: make([]string, 0, len(m.RequiredArtifacts)),
		}
		for _, name := range m.RequiredArtifacts {
			info.RequiredArtifacts = append(info.RequiredArtifacts, string(name))
		}
		out.Audits = append(out.Audits, info)
	}
	return nil, out, nil
}

type GatherInput struct {
	TargetInput
	URL string `json:"url,omitempty" jsonschema:"URL to load before gathering; the current page is used when empty"`
}

type GatherOutput struct {
	SnapshotID   string `json:"snapshot_id" jsonschema:"identifier for the stored snapshot"`
	URL          string `json:"url" jsonschema:"page URL"`
	FormFields   int    `json:"formFields" jsonschema:"number of form fields collected"`
	MetaElements int    `json:"metaElements" jsonschema:"number of head meta elements collected"`
}

func (s *Server) gather(ctx context.Context, _ *mcp.CallToolRequest, input GatherInput) (*mcp.CallToolResult, GatherOutput, error) {
	ctx = s.withTarget(ctx, input.TargetInput)
	pageURL, err := s.resolvePage(ctx, input.URL, input.TabID)
	if err != nil {
		return nil, GatherOutput{}, err
	}
	snap, err := s.audits.Gather(ctx, s.browser, pageURL)
	if err != nil {
		return nil, GatherOutput{}, err
	}
	return nil, GatherOutput{
		SnapshotID:   snap.ID,
		URL:          snap.URL,
		FormFields:   len(snap.Artifacts.FormFields),
		MetaElements: len(snap.Artifacts.MetaElements),
	}, nil
}

type RunInput struct {
	TargetInput
	URL        string   `json:"url,omitempty" jsonschema:"URL to load before auditing"`
	SnapshotID string   `json:"snapshotId,omitempty" jsonschema:"audit this stored snapshot instead of gathering"`
	Audits     []string `json:"audits,omitempty" jsonschema:"audit ids to run; all when empty"`
}

type AuditEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Outcome     string  `json:"outcome" jsonschema:"pass, partial, fail, not_applicable or error"`
	Score       float64 `json:"score" jsonschema:"score in [0,1]; meaningless for not_applicable and error"`
	Explanation string  `json:"explanation,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type RunOutput struct {
	SnapshotID string         `json:"snapshot_id"`
	URL        string         `json:"url"`
	Summary    report.Summary `json:"summary"`
	Audits     []AuditEntry   `json:"audits"`
}

func (s *Server) run(ctx context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, RunOutput, error) {
	var (
		rep report.Report
		err error
	)
	if input.SnapshotID != "" {
		if input.URL != "" {
			return nil, RunOutput{}, errors.New("url and snapshotId are mutually exclusive")
		}
		rep, err = s.audits.Audit(input.SnapshotID, input.Audits...)
	} else {
		ctx = s.withTarget(ctx, input.TargetInput)
		var pageURL string
		pageURL, err = s.resolvePage(ctx, input.URL, input.TabID)
		if err != nil {
			return nil, RunOutput{}, err
		}
		rep, err = s.audits.Run(ctx, s.browser, pageURL, input.Audits...)
	}
	if err != nil {
		return nil, RunOutput{}, err
	}
	s.logger.Debug("audit run", zap.String("snapshot", rep.SnapshotID), zap.Int("results", len(rep.Results)))
	return nil, runOutput(rep), nil
}

func runOutput(rep report.Report) RunOutput {
	out := RunOutput{
		SnapshotID: rep.SnapshotID,
		URL:        rep.URL,
		Summary:    rep.Summary(),
		Audits:     make([]AuditEntry, 0, len(rep.Results)),
	}
	for i, e := range rep.Entries() {
		entry := AuditEntry{
			ID:          e.ID,
			Title:       e.Title,
			Outcome:     string(rep.Results[i].Outcome()),
			Explanation: e.Explanation,
			Error:       e.Error,
		}
		if e.Score != nil {
			entry.Score = *e.Score
		}
		out.Audits = append(out.Audits, entry)
	}
	return out
}

// resolvePage navigates when url is set, otherwise reports the URL of the
// targeted tab.
func (s *Server) resolvePage(ctx context.Context, rawURL string, tabID int) (string, error) {
	if s.browser == nil {
		return "", errors.New("no browser connected")
	}
	target := strings.TrimSpace(rawURL)
	if target != "" {
		res, err := s.browser.Navigate(ctx, target)
		if err != nil {
			return "", err
		}
		if res.URL != "" {
			return res.URL, nil
		}
		return target, nil
	}
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return "", err
	}
	tab, _ := browser.PickTab(tabs, tabID)
	return tab.URL, nil
}

type NavigateInput struct {
	TargetInput
	URL string `json:"url" jsonschema:"URL to navigate to"`
}

func (s *Server) navigate(ctx context.Context, _ *mcp.CallToolRequest, input NavigateInput) (*mcp.CallToolResult, browser.NavigateResult, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, browser.NavigateResult{}, errors.New("url is required")
	}
	if s.browser == nil {
		return nil, browser.NavigateResult{}, errors.New("no browser connected")
	}
	ctx = s.withTarget(ctx, input.TargetInput)
	out, err := s.browser.Navigate(ctx, input.URL)
	if err != nil {
		return nil, browser.NavigateResult{}, err
	}
	return nil, out, nil
}

type ListTabsInput struct {
	TargetInput
}

type ListTabsOutput struct {
	Tabs []browser.TabInfo `json:"tabs"`
}

func (s *Server) listTabs(ctx context.Context, _ *mcp.CallToolRequest, input ListTabsInput) (*mcp.CallToolResult, ListTabsOutput, error) {
	if s.browser == nil {
		return nil, ListTabsOutput{}, errors.New("no browser connected")
	}
	ctx = s.withTarget(ctx, input.TargetInput)
	tabs, err := s.browser.ListTabs(ctx)
	if err != nil {
		return nil, ListTabsOutput{}, err
	}
	if tabs == nil {
		tabs = []browser.TabInfo{}
	}
	return nil, ListTabsOutput{Tabs: tabs}, nil
}

func (s *Server) readSnapshot(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	u, err := url.Parse(req.Params.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid resource URI: %w", err)
	}
	if u.Scheme != snapshotScheme || u.Host != "snapshot" {
		return nil, fmt.Errorf("unsupported resource URI: %s", req.Params.URI)
	}
	id := strings.TrimPrefix(u.Path, "/")
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if id == "latest" {
		id = ""
	}
	snap, err := s.audits.Snapshot(id)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, snap)
}

func (s *Server) readLatest(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	snap, err := s.audits.Snapshot("")
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, snap)
}

func (s *Server) readReport(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if req == nil || req.Params == nil {
		return nil, errors.New("missing resource params")
	}
	rep, ok := s.audits.LatestReport()
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, runOutput(rep))
}

func jsonResource(uri string, value any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
