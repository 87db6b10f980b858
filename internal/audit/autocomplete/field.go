// Package autocomplete scores how well payment form fields support
// browser autofill.
package autocomplete

import (
	"strings"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

var fieldStrings = i18n.UIStrings{
	"title":          "Implements autocomplete for {field}",
	"failureTitle":   "Does not implement autocomplete for {field}",
	"description":    "Form fields for {field} should include the autocomplete attribute.",
	"noFormFields":   "Form field not present.",
	"noAutocomplete": "The field '{name}' is missing autocomplete attribute of '{autocomplete}'.",
}

var fieldStr = i18n.NewMessageFn("audits/autocomplete/field", fieldStrings)

// FieldMeta builds the descriptor shared by single-field autocomplete
// audits. label is the human name of the field, e.g. "card number".
func FieldMeta(id, label string) audit.Meta {
	values := map[string]string{"field": label}
	return audit.Meta{
		ID:                id,
		Title:             fieldStr("title", values),
		FailureTitle:      fieldStr("failureTitle", values),
		Description:       fieldStr("description", values),
		RequiredArtifacts: []artifact.Name{artifact.FormFieldsName},
	}
}

// AuditField checks that the first field named fieldName carries exactly
// the expected autocomplete token. Names match case-insensitively; the
// token comparison is exact.
func AuditField(artifacts artifact.Artifacts, fieldName, expected string) audit.Verdict {
	field, ok := findField(artifacts.FormFields, fieldName)
	if !ok {
		msg := fieldStr("noFormFields", nil)
		return audit.NotApplicable(&msg)
	}
	if field.Autocomplete == expected {
		return audit.Pass()
	}
	return audit.Fail(fieldStr("noAutocomplete", map[string]string{
		"name":         fieldName,
		"autocomplete": expected,
	}))
}

// findField returns the first field in list order whose name matches.
func findField(fields []artifact.FormField, name string) (artifact.FormField, bool) {
	name = strings.ToLower(name)
	for _, f := range fields {
		if strings.ToLower(f.Name) == name {
			return f, true
		}
	}
	return artifact.FormField{}, false
}

// Field is a single-field autocomplete audit.
type Field struct {
	ID           string
	Label        string
	FieldName    string
	Autocomplete string
}

func (f Field) Meta() audit.Meta {
	return FieldMeta(f.ID, f.Label)
}

func (f Field) Audit(artifacts artifact.Artifacts) audit.Verdict {
	return AuditField(artifacts, f.FieldName, f.Autocomplete)
}

var (
	CardName   = Field{ID: "card-name", Label: "card name", FieldName: "ccname", Autocomplete: "cc-name"}
	CardNumber = Field{ID: "card-number", Label: "card number", FieldName: "cardnumber", Autocomplete: "cc-number"}
	CVC        = Field{ID: "cvc", Label: "cvc", FieldName: "cvc", Autocomplete: "cc-csc"}
)
