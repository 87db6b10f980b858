// Package protocol is the JSON envelope exchanged with the browser
// extension over the websocket bridge.
package protocol

import "encoding/json"

type CommandType string

const (
	CommandEvaluate CommandType = "evaluate"
	CommandNavigate CommandType = "navigate"
	CommandListTabs CommandType = "list_tabs"
)

type Command struct {
	ID        string          `json:"id"`
	Type      CommandType     `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	TabID     int             `json:"tabId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type Response struct {
	ID        string          `json:"id"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EvaluatePayload asks the extension to run Expression in the tab. With
// UseIsolation the extension evaluates in an isolated world so page globals
// and the result cannot leak into each other.
type EvaluatePayload struct {
	Procedure    string `json:"procedure,omitempty"`
	Expression   string `json:"expression"`
	UseIsolation bool   `json:"useIsolation,omitempty"`
	AwaitPromise bool   `json:"awaitPromise,omitempty"`
}

// EvaluateData carries the procedure's return value as JSON.
type EvaluateData struct {
	Value json.RawMessage `json:"value"`
}

// NavigatePayload loads URL and replies once the tab has finished loading.
type NavigatePayload struct {
	URL string `json:"url"`
}

// Error codes the extension reports in Response.ErrorCode.
const (
	ErrorCodeNoTab         = "NO_TAB"
	ErrorCodeNavigated     = "NAVIGATED"
	ErrorCodeException     = "EXCEPTION"
	ErrorCodeNotSerialized = "NOT_SERIALIZABLE"
)
