package gather

import (
	_ "embed"
	"strings"

	"github.com/adityalohuni/formaudit/internal/browser"
	"github.com/adityalohuni/formaudit/internal/browser/static"
)

var (
	//go:embed js/page-functions.js
	pageFunctionsJS string
	//go:embed js/form-fields.js
	formFieldsJS string
	//go:embed js/meta-elements.js
	metaElementsJS string
)

// Procedure is an extraction routine packaged to run in a document it does
// not own. Source must only reference Helpers and standard DOM APIs so the
// serialized expression stays self-contained.
type Procedure struct {
	Name    string
	Entry   string
	Source  string
	Helpers []string
	Native  static.Procedure
}

// Expression serializes the procedure and its helpers into one immediately
// invoked function whose value is the procedure's return value.
func (p Procedure) Expression() string {
	var b strings.Builder
	b.WriteString("(() => {\n")
	for _, h := range p.Helpers {
		b.WriteString(h)
		b.WriteString(";\n")
	}
	b.WriteString(p.Source)
	b.WriteString(";\n")
	b.WriteString("return ")
	b.WriteString(p.Entry)
	b.WriteString("();\n})()")
	return b.String()
}

// Request builds the isolated evaluation request for the procedure.
func (p Procedure) Request() browser.EvalRequest {
	return browser.EvalRequest{
		Procedure:    p.Name,
		Expression:   p.Expression(),
		UseIsolation: true,
		AwaitPromise: true,
	}
}

var FormFieldsProcedure = Procedure{
	Name:    "getFormFields",
	Entry:   "getFormFields",
	Source:  formFieldsJS,
	Helpers: []string{pageFunctionsJS},
	Native:  func(doc *static.Document) (any, error) { return CollectFormFields(doc.Root()), nil },
}

var MetaElementsProcedure = Procedure{
	Name:    "getMetaElements",
	Entry:   "getMetaElements",
	Source:  metaElementsJS,
	Helpers: []string{pageFunctionsJS},
	Native:  func(doc *static.Document) (any, error) { return CollectMetaElements(doc.Root()), nil },
}

// Natives returns the in-process implementations of every procedure, keyed
// by name, for executors that evaluate against a parsed document.
func Natives() map[string]static.Procedure {
	out := make(map[string]static.Procedure)
	for _, p := range []Procedure{FormFieldsProcedure, MetaElementsProcedure} {
		out[p.Name] = p.Native
	}
	return out
}
