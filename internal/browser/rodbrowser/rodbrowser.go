// Package rodbrowser evaluates procedures in a Chrome tab driven over the
// DevTools protocol with go-rod.
package rodbrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/browser"
)

// worldName labels the isolated execution context procedures run in.
const worldName = "formaudit"

type Options struct {
	// DebuggerURL attaches to a running Chrome. Empty launches one.
	DebuggerURL string
	Bin         string
	Headless    bool
	Logger      *zap.Logger
}

type Channel struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	logger   *zap.Logger
}

var (
	_ browser.Channel    = (*Channel)(nil)
	_ browser.Controller = (*Channel)(nil)
)

// Open connects to Chrome and opens a blank tab to audit in.
func Open(ctx context.Context, opts Options) (*Channel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rod")

	c := &Channel{logger: logger}
	controlURL := opts.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		c.launcher = l
		controlURL = url
		logger.Debug("chrome launched", zap.String("control_url", url))
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		c.cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	c.page = page
	return c, nil
}

// Navigate loads url and returns once the load event has fired.
func (c *Channel) Navigate(ctx context.Context, url string) (browser.NavigateResult, error) {
	if url == "" {
		return browser.NavigateResult{}, errors.New("url is required")
	}
	page := c.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return browser.NavigateResult{}, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return browser.NavigateResult{}, fmt.Errorf("wait for load: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return browser.NavigateResult{URL: url}, nil
	}
	c.logger.Debug("page loaded", zap.String("url", info.URL))
	return browser.NavigateResult{URL: info.URL}, nil
}

func (c *Channel) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	pages, err := c.browser.Context(ctx).Pages()
	if err != nil {
		return nil, err
	}
	out := make([]browser.TabInfo, 0, len(pages))
	for i, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		out = append(out, browser.TabInfo{
			ID:     i,
			Title:  info.Title,
			URL:    info.URL,
			Active: p.TargetID == c.page.TargetID,
		})
	}
	return out, nil
}

// Evaluate runs the expression in the audited tab. With UseIsolation the
// expression gets a fresh isolated world so page scripts cannot observe or
// shadow the procedure's bindings.
func (c *Channel) Evaluate(ctx context.Context, req browser.EvalRequest) (json.RawMessage, error) {
	page := c.page.Context(ctx)
	eval := proto.RuntimeEvaluate{
		Expression:    req.Expression,
		ReturnByValue: true,
		AwaitPromise:  req.AwaitPromise,
	}
	if req.UseIsolation {
		world, err := proto.PageCreateIsolatedWorld{
			FrameID:             page.FrameID,
			WorldName:           worldName,
			GrantUniveralAccess: false,
		}.Call(page)
		if err != nil {
			return nil, err
		}
		eval.ContextID = world.ExecutionContextID
	}

	res, err := eval.Call(page)
	if err != nil {
		return nil, err
	}
	if res.ExceptionDetails != nil {
		return nil, &browser.EvalError{Message: exceptionMessage(res.ExceptionDetails), Code: "EXCEPTION"}
	}
	if res.Result == nil {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Result.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func exceptionMessage(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

func (c *Channel) Close() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
	}
	c.cleanup()
	return err
}

func (c *Channel) cleanup() {
	if c.launcher != nil {
		c.launcher.Cleanup()
	}
}
