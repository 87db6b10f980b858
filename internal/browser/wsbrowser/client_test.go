package wsbrowser

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/protocol"
)

type fakeBridge struct {
	got  []protocol.Command
	resp protocol.Response
	err  error
}

func (f *fakeBridge) SendCommand(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	f.got = append(f.got, cmd)
	if _, ok := ctx.Deadline(); !ok {
		panic("command sent without deadline")
	}
	resp := f.resp
	resp.ID = cmd.ID
	return resp, f.err
}

func TestEvaluateSendsIsolatedExpression(t *testing.T) {
	bridge := &fakeBridge{resp: protocol.Response{OK: true, Data: json.RawMessage(`{"value":[{"name":"ccname"}]}`)}}
	c := NewClient(bridge, Options{})

	ctx := browser.WithTarget(context.Background(), browser.Target{SessionID: "s1", TabID: 7})
	raw, err := c.Evaluate(ctx, browser.EvalRequest{Procedure: "getFormFields", Expression: "(() => [])()", UseIsolation: true, AwaitPromise: true})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"ccname"}]`, string(raw))

	require.Len(t, bridge.got, 1)
	cmd := bridge.got[0]
	assert.Equal(t, protocol.CommandEvaluate, cmd.Type)
	assert.Equal(t, "s1", cmd.SessionID)
	assert.Equal(t, 7, cmd.TabID)
	assert.NotEmpty(t, cmd.ID)

	var payload protocol.EvaluatePayload
	require.NoError(t, json.Unmarshal(cmd.Payload, &payload))
	assert.Equal(t, protocol.EvaluatePayload{Procedure: "getFormFields", Expression: "(() => [])()", UseIsolation: true, AwaitPromise: true}, payload)
}

func TestEvaluateRejectionIsEvalError(t *testing.T) {
	bridge := &fakeBridge{resp: protocol.Response{OK: false, Error: "Inspected target navigated or closed", ErrorCode: protocol.ErrorCodeNavigated}}
	_, err := NewClient(bridge, Options{}).Evaluate(context.Background(), browser.EvalRequest{Expression: "1"})

	var evalErr *browser.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, protocol.ErrorCodeNavigated, evalErr.Code)
}

func TestEvaluateRequiresExpression(t *testing.T) {
	bridge := &fakeBridge{}
	_, err := NewClient(bridge, Options{}).Evaluate(context.Background(), browser.EvalRequest{Procedure: "x"})
	assert.Error(t, err)
	assert.Empty(t, bridge.got)
}

func TestNavigateAndListTabs(t *testing.T) {
	bridge := &fakeBridge{resp: protocol.Response{OK: true}}
	c := NewClient(bridge, Options{})

	res, err := c.Navigate(context.Background(), "https://shop.test/")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/", res.URL)

	_, err = c.Navigate(context.Background(), "")
	assert.Error(t, err)

	bridge.resp.Data = json.RawMessage(`[{"id":3,"title":"Pay","active":true}]`)
	tabs, err := c.ListTabs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []browser.TabInfo{{ID: 3, Title: "Pay", Active: true}}, tabs)
	assert.Equal(t, protocol.CommandListTabs, bridge.got[len(bridge.got)-1].Type)
}
