package static

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/formaudit/internal/browser"
)

func TestChannelRunsNamedProcedure(t *testing.T) {
	doc, err := ParseString(`<html><head><title>x</title></head><body></body></html>`)
	require.NoError(t, err)

	ch := NewChannel(doc, map[string]Procedure{
		"title": func(d *Document) (any, error) {
			return map[string]bool{"hasRoot": d.Root() != nil}, nil
		},
	})
	raw, err := ch.Evaluate(context.Background(), browser.EvalRequest{Procedure: "title"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"hasRoot":true}`, string(raw))
}

func TestChannelUnknownProcedure(t *testing.T) {
	doc, err := ParseString(``)
	require.NoError(t, err)
	_, err = NewChannel(doc, nil).Evaluate(context.Background(), browser.EvalRequest{Procedure: "nope"})
	assert.ErrorIs(t, err, browser.ErrNoProcedure)
}

func TestChannelProcedureFailureIsEvalError(t *testing.T) {
	doc, err := ParseString(``)
	require.NoError(t, err)
	ch := NewChannel(doc, map[string]Procedure{
		"bad": func(*Document) (any, error) { return nil, errors.New("boom") },
	})
	_, err = ch.Evaluate(context.Background(), browser.EvalRequest{Procedure: "bad"})
	var evalErr *browser.EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "boom", evalErr.Message)
}

func TestChannelHonorsCanceledContext(t *testing.T) {
	doc, err := ParseString(``)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewChannel(doc, nil).Evaluate(ctx, browser.EvalRequest{Procedure: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
