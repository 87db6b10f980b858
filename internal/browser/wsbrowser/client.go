// Package wsbrowser evaluates procedures in a browser tab through the
// extension connected to the websocket bridge.
package wsbrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/protocol"
	"github.com/adityalohuni/formaudit/internal/wsbridge"
)

// Sender is the part of the bridge the client needs.
type Sender interface {
	SendCommand(ctx context.Context, cmd protocol.Command) (protocol.Response, error)
}

var _ Sender = (*wsbridge.Bridge)(nil)

type Options struct {
	Timeout time.Duration
}

type Client struct {
	bridge  Sender
	timeout time.Duration
}

var (
	_ browser.Channel    = (*Client)(nil)
	_ browser.Controller = (*Client)(nil)
)

func NewClient(bridge Sender, opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{bridge: bridge, timeout: timeout}
}

// Evaluate runs the request's expression in the target tab. A response
// with ok=false becomes a *browser.EvalError carrying the extension's
// message and code.
func (c *Client) Evaluate(ctx context.Context, req browser.EvalRequest) (json.RawMessage, error) {
	if req.Expression == "" {
		return nil, errors.New("expression is required")
	}
	resp, err := c.send(ctx, protocol.CommandEvaluate, protocol.EvaluatePayload{
		Procedure:    req.Procedure,
		Expression:   req.Expression,
		UseIsolation: req.UseIsolation,
		AwaitPromise: req.AwaitPromise,
	})
	if err != nil {
		return nil, err
	}
	var data protocol.EvaluateData
	if err := decodeResponse(resp, &data); err != nil {
		return nil, fmt.Errorf("decode evaluate response: %w", err)
	}
	if len(data.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return data.Value, nil
}

func (c *Client) Navigate(ctx context.Context, url string) (browser.NavigateResult, error) {
	if url == "" {
		return browser.NavigateResult{}, errors.New("url is required")
	}
	resp, err := c.send(ctx, protocol.CommandNavigate, protocol.NavigatePayload{URL: url})
	if err != nil {
		return browser.NavigateResult{}, err
	}
	out := browser.NavigateResult{URL: url}
	if err := decodeResponse(resp, &out); err != nil {
		return browser.NavigateResult{}, err
	}
	return out, nil
}

func (c *Client) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	resp, err := c.send(ctx, protocol.CommandListTabs, struct{}{})
	if err != nil {
		return nil, err
	}
	var out []browser.TabInfo
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, cmdType protocol.CommandType, payload any) (protocol.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return protocol.Response{}, err
	}
	resp, err := c.bridge.SendCommand(ctx, c.makeCommand(ctx, cmdType, raw))
	if err != nil {
		return protocol.Response{}, err
	}
	if !resp.OK {
		return protocol.Response{}, &browser.EvalError{Message: resp.Error, Code: resp.ErrorCode}
	}
	return resp, nil
}

func (c *Client) makeCommand(ctx context.Context, cmdType protocol.CommandType, payload json.RawMessage) protocol.Command {
	cmd := protocol.Command{
		ID:      uuid.New().String(),
		Type:    cmdType,
		Payload: payload,
	}
	if target, ok := browser.TargetFromContext(ctx); ok {
		cmd.SessionID = target.SessionID
		cmd.TabID = target.TabID
	}
	return cmd
}

func decodeResponse(resp protocol.Response, out any) error {
	if len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}
