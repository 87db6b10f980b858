// Package audits wires the bundled audits into a registry.
package audits

import (
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/audit/autocomplete"
	"github.com/adityalohuni/formaudit/internal/audit/document"
)

// Default returns a registry with every bundled audit.
func Default() *audit.Registry {
	r := audit.NewRegistry()
	r.MustRegister(
		autocomplete.CardName,
		autocomplete.CardNumber,
		autocomplete.Expiration{},
		autocomplete.CVC,
		document.Charset{},
	)
	return r
}
