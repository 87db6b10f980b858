// Package gather runs extraction procedures through an evaluation channel
// and turns their results into typed artifacts.
package gather

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/browser"
)

// PassContext is what a gatherer sees of the page being audited. The page
// has already settled when AfterPass runs.
type PassContext struct {
	Channel browser.Channel
	URL     string
}

type Gatherer interface {
	Name() artifact.Name
	AfterPass(ctx context.Context, pass PassContext) (any, error)
}

// Default returns one gatherer per known artifact.
func Default() []Gatherer {
	return []Gatherer{FormFields{}, MetaElements{}}
}

type FormFields struct{}

func (FormFields) Name() artifact.Name { return artifact.FormFieldsName }

func (FormFields) AfterPass(ctx context.Context, pass PassContext) (any, error) {
	return GetFormFields(ctx, pass.Channel)
}

// GetFormFields evaluates the form-field procedure once. Channel errors are
// returned as-is.
func GetFormFields(ctx context.Context, ch browser.Channel) ([]artifact.FormField, error) {
	return evaluate[[]artifact.FormField](ctx, ch, FormFieldsProcedure)
}

type MetaElements struct{}

func (MetaElements) Name() artifact.Name { return artifact.MetaElementsName }

func (MetaElements) AfterPass(ctx context.Context, pass PassContext) (any, error) {
	return GetMetaElements(ctx, pass.Channel)
}

func GetMetaElements(ctx context.Context, ch browser.Channel) ([]artifact.MetaElement, error) {
	return evaluate[[]artifact.MetaElement](ctx, ch, MetaElementsProcedure)
}

func evaluate[T any](ctx context.Context, ch browser.Channel, proc Procedure) (T, error) {
	var out T
	raw, err := ch.Evaluate(ctx, proc.Request())
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", proc.Name, err)
	}
	return out, nil
}
