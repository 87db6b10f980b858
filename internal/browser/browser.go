// Package browser defines the evaluation channel: the narrow contract used
// to run a serialized extraction procedure against a live document and get
// its JSON result back.
package browser

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoProcedure is returned by executors that cannot run the requested procedure.
var ErrNoProcedure = errors.New("procedure not available")

// EvalRequest is one self-contained evaluation. Expression is the complete
// serialized procedure; Procedure names it for executors that run native
// implementations instead of script.
type EvalRequest struct {
	Procedure    string
	Expression   string
	UseIsolation bool
	AwaitPromise bool
}

// Channel evaluates procedures against the current document of a target.
// Implementations return the procedure's return value as JSON, or an error
// when the remote side rejects the call. They never retry.
type Channel interface {
	Evaluate(ctx context.Context, req EvalRequest) (json.RawMessage, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, req EvalRequest) (json.RawMessage, error)

func (f ChannelFunc) Evaluate(ctx context.Context, req EvalRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

// EvalError is a rejection reported by the remote document: a thrown
// exception, a navigation that aborted the call, a detached target.
type EvalError struct {
	Message string
	Code    string
}

func (e *EvalError) Error() string {
	switch {
	case e.Message == "" && e.Code == "":
		return "evaluation failed"
	case e.Message == "":
		return "evaluation failed (" + e.Code + ")"
	case e.Code == "":
		return e.Message
	default:
		return e.Message + " (" + e.Code + ")"
	}
}

type TabInfo struct {
	ID     int    `json:"id"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Active bool   `json:"active,omitempty"`
	Owner  string `json:"owner,omitempty"`
}

type NavigateResult struct {
	URL string `json:"url"`
}

// Controller is implemented by channels that can also steer the tab they
// evaluate in. The extension channel is one; static documents are not.
type Controller interface {
	Navigate(ctx context.Context, url string) (NavigateResult, error)
	ListTabs(ctx context.Context) ([]TabInfo, error)
}
