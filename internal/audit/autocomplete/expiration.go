package autocomplete

import (
	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
	"github.com/adityalohuni/formaudit/internal/i18n"
)

var expirationStrings = i18n.UIStrings{
	"noYear":         "No year field found.",
	"noMonth":        "No month field found.",
	"noAutocomplete": "The expiration field '{name}' is missing autocomplete attribute of '{autocomplete}'.",
}

var expirationStr = i18n.NewMessageFn("audits/autocomplete/expiration", expirationStrings)

const (
	dateFieldName  = "exp-date"
	monthFieldName = "ccmonth"
	yearFieldName  = "ccyear"
)

// Expiration scores the card expiration inputs. A page may use one combined
// date field or separate month and year fields.
type Expiration struct{}

func (Expiration) Meta() audit.Meta {
	return FieldMeta("expiration", "expiration date")
}

func (Expiration) Audit(artifacts artifact.Artifacts) audit.Verdict {
	fields := expirationFields{}
	fields.date, fields.hasDate = findField(artifacts.FormFields, dateFieldName)
	fields.month, fields.hasMonth = findField(artifacts.FormFields, monthFieldName)
	fields.year, fields.hasYear = findField(artifacts.FormFields, yearFieldName)

	for _, r := range expirationRules {
		if r.when(fields) {
			return r.verdict(fields)
		}
	}
	return audit.NotApplicable(nil)
}

type expirationFields struct {
	date, month, year          artifact.FormField
	hasDate, hasMonth, hasYear bool
}

func (f expirationFields) dateOK() bool  { return f.hasDate && f.date.Autocomplete == "cc-exp" }
func (f expirationFields) monthOK() bool { return f.hasMonth && f.month.Autocomplete == "cc-exp-month" }
func (f expirationFields) yearOK() bool  { return f.hasYear && f.year.Autocomplete == "cc-exp-year" }

type expirationRule struct {
	when    func(expirationFields) bool
	verdict func(expirationFields) audit.Verdict
}

// Order matters: conditions overlap and the first match wins. A correct
// month with a wrong year earns half credit; the reverse earns none.
var expirationRules = []expirationRule{
	{
		when:    expirationFields.dateOK,
		verdict: func(expirationFields) audit.Verdict { return audit.Pass() },
	},
	{
		when:    func(f expirationFields) bool { return f.monthOK() && f.yearOK() },
		verdict: func(expirationFields) audit.Verdict { return audit.Pass() },
	},
	{
		when: func(f expirationFields) bool { return f.hasYear && f.monthOK() },
		verdict: func(f expirationFields) audit.Verdict {
			return audit.Partial(0.5, missingToken(f.year, "cc-exp-year"))
		},
	},
	{
		when: func(f expirationFields) bool { return f.hasMonth && f.yearOK() },
		verdict: func(f expirationFields) audit.Verdict {
			return audit.Fail(missingToken(f.month, "cc-exp-month"))
		},
	},
	{
		when: func(f expirationFields) bool { return f.hasDate },
		verdict: func(f expirationFields) audit.Verdict {
			return audit.Fail(missingToken(f.date, "cc-exp"))
		},
	},
	{
		when:    func(f expirationFields) bool { return f.hasMonth && !f.hasYear },
		verdict: func(expirationFields) audit.Verdict { return audit.Fail(expirationStr("noYear", nil)) },
	},
	{
		when:    func(f expirationFields) bool { return f.hasYear && !f.hasMonth },
		verdict: func(expirationFields) audit.Verdict { return audit.Fail(expirationStr("noMonth", nil)) },
	},
}

func missingToken(field artifact.FormField, token string) i18n.Message {
	return expirationStr("noAutocomplete", map[string]string{
		"name":         field.Name,
		"autocomplete": token,
	})
}
