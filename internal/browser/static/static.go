// Package static evaluates extraction procedures against a parsed HTML
// document instead of a live browser. Procedures are looked up by name and
// run natively; their results go through the same JSON encoding a remote
// channel would produce.
package static

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/adityalohuni/formaudit/internal/browser"
)

// Procedure is a native implementation of an extraction procedure.
type Procedure func(doc *Document) (any, error)

// Document is a parsed, read-only page.
type Document struct {
	URL  string
	root *html.Node
}

func Parse(r io.Reader, url string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{URL: url, root: root}, nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s), "")
}

func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, "file://"+path)
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

type Channel struct {
	doc        *Document
	procedures map[string]Procedure
}

func NewChannel(doc *Document, procedures map[string]Procedure) *Channel {
	return &Channel{doc: doc, procedures: procedures}
}

func (c *Channel) Evaluate(ctx context.Context, req browser.EvalRequest) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proc, ok := c.procedures[req.Procedure]
	if !ok || proc == nil {
		return nil, fmt.Errorf("%w: %q", browser.ErrNoProcedure, req.Procedure)
	}
	value, err := proc(c.doc)
	if err != nil {
		return nil, &browser.EvalError{Message: err.Error(), Code: "PROCEDURE_FAILED"}
	}
	return json.Marshal(value)
}
