// Package cdpbrowser evaluates procedures in a Chrome tab driven with
// chromedp.
package cdpbrowser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/adityalohuni/formaudit/internal/browser"
)

const worldName = "formaudit"

type Options struct {
	// DebuggerURL attaches to a running Chrome. Empty starts one.
	DebuggerURL string
	Headless    bool
	Logger      *zap.Logger
}

type Channel struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

var (
	_ browser.Channel    = (*Channel)(nil)
	_ browser.Controller = (*Channel)(nil)
)

// Open starts or attaches to Chrome and opens a tab. The tab and any
// started browser live until Close.
func Open(ctx context.Context, opts Options) (*Channel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.DebuggerURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), opts.DebuggerURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run starts the browser and attaches the tab.
	if err := runWith(ctx, tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Channel{ctx: tabCtx, cancel: cancel, logger: logger.Named("chromedp")}, nil
}

// runWith runs actions in the tab context, aborting when ctx is done.
func runWith(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return err
}

// Navigate loads url; chromedp waits for the load event.
func (c *Channel) Navigate(ctx context.Context, url string) (browser.NavigateResult, error) {
	if url == "" {
		return browser.NavigateResult{}, errors.New("url is required")
	}
	var location string
	if err := runWith(ctx, c.ctx, chromedp.Navigate(url), chromedp.Location(&location)); err != nil {
		return browser.NavigateResult{}, fmt.Errorf("navigate: %w", err)
	}
	c.logger.Debug("page loaded", zap.String("url", location))
	return browser.NavigateResult{URL: location}, nil
}

func (c *Channel) ListTabs(ctx context.Context) ([]browser.TabInfo, error) {
	targets, err := chromedp.Targets(c.ctx)
	if err != nil {
		return nil, err
	}
	current := chromedp.FromContext(c.ctx).Target
	out := []browser.TabInfo{}
	for i, t := range targets {
		if t.Type != "page" {
			continue
		}
		out = append(out, browser.TabInfo{
			ID:     i,
			Title:  t.Title,
			URL:    t.URL,
			Active: current != nil && t.TargetID == current.TargetID,
		})
	}
	return out, nil
}

func (c *Channel) Evaluate(ctx context.Context, req browser.EvalRequest) (json.RawMessage, error) {
	var raw json.RawMessage
	err := runWith(ctx, c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		eval := runtime.Evaluate(req.Expression).
			WithReturnByValue(true).
			WithAwaitPromise(req.AwaitPromise)
		if req.UseIsolation {
			id, err := isolatedWorld(ctx)
			if err != nil {
				return err
			}
			eval = eval.WithContextID(id)
		}
		res, exc, err := eval.Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return &browser.EvalError{Message: exceptionMessage(exc), Code: "EXCEPTION"}
		}
		if res == nil || len(res.Value) == 0 {
			raw = json.RawMessage("null")
			return nil
		}
		raw = json.RawMessage(res.Value)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func isolatedWorld(ctx context.Context) (runtime.ExecutionContextID, error) {
	tree, err := page.GetFrameTree().Do(ctx)
	if err != nil {
		return 0, err
	}
	return page.CreateIsolatedWorld(tree.Frame.ID).WithWorldName(worldName).Do(ctx)
}

func exceptionMessage(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}

func (c *Channel) Close() error {
	c.cancel()
	return nil
}
