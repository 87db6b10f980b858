package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/auditsvc"
	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/browser/static"
	"github.com/adityalohuni/formaudit/internal/gather"
)

const checkoutPage = `<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8"></head><body>
<form>
	<input name="ccname" autocomplete="cc-name">
	<input name="ccmonth" autocomplete="cc-exp-month">
	<input name="ccyear">
	<input name="cvc">
</form></body></html>`

type stubBrowser struct {
	browser.Channel
	navigated []string
	target    browser.Target
}

func (b *stubBrowser) Navigate(ctx context.Context, url string) (browser.NavigateResult, error) {
	b.navigated = append(b.navigated, url)
	return browser.NavigateResult{URL: url}, nil
}

func (b *stubBrowser) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	b.target, _ = browser.TargetFromContext(ctx)
	return []browser.TabInfo{{ID: 1, URL: "https://shop.test/pay", Active: true}}, nil
}

func connect(t *testing.T) (*mcp.ClientSession, *stubBrowser, *auditsvc.Service) {
	t.Helper()
	doc, err := static.ParseString(checkoutPage)
	require.NoError(t, err)
	br := &stubBrowser{Channel: static.NewChannel(doc, gather.Natives())}
	svc := auditsvc.New(auditsvc.Options{})
	srv := New(br, svc, Options{})

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, br, svc
}

func call[T any](t *testing.T, session *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s failed: %+v", name, res.Content)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListAudits(t *testing.T) {
	session, _, _ := connect(t)
	out := call[ListAuditsOutput](t, session, "audit.list", map[string]any{})

	require.Len(t, out.Audits, 5)
	assert.Equal(t, "card-name", out.Audits[0].ID)
	assert.Equal(t, []string{"FormFields"}, out.Audits[0].RequiredArtifacts)
	assert.NotEmpty(t, out.Audits[0].Title)
}

func TestRunAuditsCurrentTab(t *testing.T) {
	session, br, _ := connect(t)
	out := call[RunOutput](t, session, "audit.run", map[string]any{"sessionId": "s9"})

	assert.Equal(t, "https://shop.test/pay", out.URL)
	assert.Equal(t, "s9", br.target.SessionID)
	assert.Empty(t, br.navigated)

	byID := map[string]AuditEntry{}
	for _, a := range out.Audits {
		byID[a.ID] = a
	}
	assert.Equal(t, "pass", byID["card-name"].Outcome)
	assert.Equal(t, "partial", byID["expiration"].Outcome)
	assert.InDelta(t, 0.5, byID["expiration"].Score, 1e-9)
	assert.Equal(t, "fail", byID["cvc"].Outcome)
	assert.Equal(t, "not_applicable", byID["card-number"].Outcome)
	assert.Equal(t, "pass", byID["charset"].Outcome)
}

func TestGatherThenRunSnapshot(t *testing.T) {
	session, br, _ := connect(t)
	gathered := call[GatherOutput](t, session, "audit.gather", map[string]any{"url": "https://shop.test/checkout"})
	assert.Equal(t, []string{"https://shop.test/checkout"}, br.navigated)
	assert.Equal(t, 4, gathered.FormFields)
	assert.Equal(t, 1, gathered.MetaElements)

	out := call[RunOutput](t, session, "audit.run", map[string]any{
		"snapshotId": gathered.SnapshotID,
		"audits":     []string{"cvc"},
	})
	assert.Equal(t, gathered.SnapshotID, out.SnapshotID)
	require.Len(t, out.Audits, 1)
	assert.Equal(t, "fail", out.Audits[0].Outcome)
	assert.Equal(t, 1, out.Summary.Failed)
}

func TestRunRejectsUnknownAudit(t *testing.T) {
	session, _, _ := connect(t)
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "audit.run",
		Arguments: map[string]any{"audits": []string{"nope"}},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestReadResources(t *testing.T) {
	session, _, svc := connect(t)
	ctx := context.Background()

	_, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "artifacts://snapshot/latest"})
	assert.Error(t, err)

	call[RunOutput](t, session, "audit.run", map[string]any{})
	snap, err := svc.Snapshot("")
	require.NoError(t, err)

	res, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "artifacts://snapshot/" + snap.ID})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, `"FormFields"`)

	res, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "report://latest"})
	require.NoError(t, err)
	var rep RunOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &rep))
	assert.Equal(t, snap.ID, rep.SnapshotID)

	_, err = session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "artifacts://snapshot/missing"})
	assert.Error(t, err)
}
